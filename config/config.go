// Package config implements the typed, sanitized configuration surface of
// SPEC_FULL.md §6, loaded from urfave/cli flags/env. Grounded in klaytn's
// cmd/utils/flags.go flag declarations and node/sc.BridgeTxPoolConfig's
// sanitize() pattern.
package config

import (
	"time"

	"github.com/blocktimefinancial/refractor-sub001/log"
)

var logger = log.NewModuleLogger("config")

// StoreBackend selects the Store's persistence layer (§4.1).
type StoreBackend string

const (
	BackendSQL    StoreBackend = "sql"
	BackendBadger StoreBackend = "badger"
	BackendMemory StoreBackend = "memory"
)

// NetworkConfig carries per-network effector parameters (§6's
// networks[name].endpoint / .passphrase row).
type NetworkConfig struct {
	Endpoint   string
	Passphrase string
}

// Config is the enumerated §6 configuration table plus the ambient
// transport/backend selection it requires to be actionable.
type Config struct {
	// Finalizer Queue (§4.2).
	ParallelTasks        int
	MinParallelTasks     int
	MaxParallelTasks     int
	AdaptiveConcurrency  bool
	RetryAttempts        int
	RetryDelay           time.Duration
	MetricsInterval      time.Duration

	// Scheduler (§4.3).
	TargetQueueSize int
	TickerTimeout   time.Duration

	// Submission Queue (§4.6) — deliberately a second, stricter Queue
	// config from the Finalizer Queue's.
	SubmissionConcurrency    int
	MaxSubmissionConcurrency int
	SubmissionRetryAttempts  int
	SubmissionRetryDelay     time.Duration

	// Per-network effector parameters, keyed "blockchain:networkName".
	Networks map[string]NetworkConfig

	// Ambient: storage backend selection (expansion, §4.1).
	StoreBackend   StoreBackend
	SQLDSN         string
	BadgerDir      string

	// Ambient: HTTP transport (expansion, §6).
	HTTPListenAddr string
	CORSOrigins    []string

	// Ambient: outbound event publisher (expansion, §2 item 12).
	EventsEnabled     bool
	KafkaBrokers      []string
	KafkaTopicPrefix  string
}

// Default returns the §6-documented defaults.
func Default() Config {
	return Config{
		ParallelTasks:       50,
		MinParallelTasks:    1,
		MaxParallelTasks:    100,
		AdaptiveConcurrency: true,
		RetryAttempts:       3,
		RetryDelay:          time.Second,
		MetricsInterval:     30 * time.Second,

		TargetQueueSize: 200,
		TickerTimeout:   2 * time.Second,

		SubmissionConcurrency:    10,
		MaxSubmissionConcurrency: 20,
		SubmissionRetryAttempts:  5,
		SubmissionRetryDelay:     2 * time.Second,

		Networks: map[string]NetworkConfig{},

		StoreBackend: BackendMemory,
		BadgerDir:    "./data/refractor-sub001",

		HTTPListenAddr: ":8080",
		CORSOrigins:    []string{"*"},

		EventsEnabled:    false,
		KafkaTopicPrefix: "refractor",
	}
}

// Sanitize replaces invalid numeric values with their defaults (a
// parallelTasks outside [min,max] is clamped to the nearer bound), logging
// each of those corrections, and silently fills an empty store backend,
// listen address, topic prefix or nil network map with its default,
// mirroring klaytn's BridgeTxPoolConfig.sanitize().
func (c Config) Sanitize() Config {
	d := Default()

	if c.ParallelTasks <= 0 {
		logger.Error("sanitizing invalid parallelTasks", "provided", c.ParallelTasks, "updated", d.ParallelTasks)
		c.ParallelTasks = d.ParallelTasks
	}
	if c.MinParallelTasks <= 0 {
		logger.Error("sanitizing invalid minParallelTasks", "provided", c.MinParallelTasks, "updated", d.MinParallelTasks)
		c.MinParallelTasks = d.MinParallelTasks
	}
	if c.MaxParallelTasks < c.MinParallelTasks {
		logger.Error("sanitizing invalid maxParallelTasks", "provided", c.MaxParallelTasks, "updated", d.MaxParallelTasks)
		c.MaxParallelTasks = d.MaxParallelTasks
	}
	if c.ParallelTasks < c.MinParallelTasks || c.ParallelTasks > c.MaxParallelTasks {
		logger.Error("sanitizing parallelTasks out of [min,max] bounds", "provided", c.ParallelTasks)
		if c.ParallelTasks < c.MinParallelTasks {
			c.ParallelTasks = c.MinParallelTasks
		} else {
			c.ParallelTasks = c.MaxParallelTasks
		}
	}
	if c.RetryAttempts < 0 {
		logger.Error("sanitizing invalid retryAttempts", "provided", c.RetryAttempts, "updated", d.RetryAttempts)
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryDelay <= 0 {
		logger.Error("sanitizing invalid retryDelay", "provided", c.RetryDelay, "updated", d.RetryDelay)
		c.RetryDelay = d.RetryDelay
	}
	if c.MetricsInterval <= 0 {
		logger.Error("sanitizing invalid metricsInterval", "provided", c.MetricsInterval, "updated", d.MetricsInterval)
		c.MetricsInterval = d.MetricsInterval
	}
	if c.TargetQueueSize <= 0 {
		logger.Error("sanitizing invalid targetQueueSize", "provided", c.TargetQueueSize, "updated", d.TargetQueueSize)
		c.TargetQueueSize = d.TargetQueueSize
	}
	if c.TickerTimeout <= 0 {
		logger.Error("sanitizing invalid tickerTimeout", "provided", c.TickerTimeout, "updated", d.TickerTimeout)
		c.TickerTimeout = d.TickerTimeout
	}
	if c.SubmissionConcurrency <= 0 {
		logger.Error("sanitizing invalid submissionConcurrency", "provided", c.SubmissionConcurrency, "updated", d.SubmissionConcurrency)
		c.SubmissionConcurrency = d.SubmissionConcurrency
	}
	if c.MaxSubmissionConcurrency < c.SubmissionConcurrency {
		logger.Error("sanitizing invalid maxSubmissionConcurrency", "provided", c.MaxSubmissionConcurrency, "updated", d.MaxSubmissionConcurrency)
		c.MaxSubmissionConcurrency = d.MaxSubmissionConcurrency
	}
	if c.SubmissionRetryAttempts < 0 {
		logger.Error("sanitizing invalid submissionRetryAttempts", "provided", c.SubmissionRetryAttempts, "updated", d.SubmissionRetryAttempts)
		c.SubmissionRetryAttempts = d.SubmissionRetryAttempts
	}
	if c.SubmissionRetryDelay <= 0 {
		logger.Error("sanitizing invalid submissionRetryDelay", "provided", c.SubmissionRetryDelay, "updated", d.SubmissionRetryDelay)
		c.SubmissionRetryDelay = d.SubmissionRetryDelay
	}
	if c.Networks == nil {
		c.Networks = d.Networks
	}
	if c.StoreBackend == "" {
		c.StoreBackend = d.StoreBackend
	}
	if c.HTTPListenAddr == "" {
		c.HTTPListenAddr = d.HTTPListenAddr
	}
	if c.KafkaTopicPrefix == "" {
		c.KafkaTopicPrefix = d.KafkaTopicPrefix
	}
	return c
}
