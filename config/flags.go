package config

import (
	"strings"
	"time"

	"gopkg.in/urfave/cli.v1"
)

// Flags mirrors klaytn's cmd/utils/flags.go declaration style: one
// package-level cli.Flag var per configuration knob, grouped by the
// component they tune.
var (
	ParallelTasksFlag = cli.IntFlag{
		Name:  "parallel-tasks",
		Usage: "Finalizer Queue initial concurrency",
		Value: 50,
	}
	MinParallelTasksFlag = cli.IntFlag{
		Name:  "min-parallel-tasks",
		Usage: "Finalizer Queue autoscaler lower bound",
		Value: 1,
	}
	MaxParallelTasksFlag = cli.IntFlag{
		Name:  "max-parallel-tasks",
		Usage: "Finalizer Queue autoscaler upper bound",
		Value: 100,
	}
	AdaptiveConcurrencyFlag = cli.BoolTFlag{
		Name:  "adaptive-concurrency",
		Usage: "Enable the Finalizer Queue's autoscaler",
	}
	RetryAttemptsFlag = cli.IntFlag{
		Name:  "retry-attempts",
		Usage: "Finalizer Worker effector attempts per task (including the first) before the record is marked failed",
		Value: 3,
	}
	RetryDelayFlag = cli.DurationFlag{
		Name:  "retry-delay",
		Usage: "Finalizer Worker base delay between effector attempts",
		Value: time.Second,
	}
	MetricsIntervalFlag = cli.DurationFlag{
		Name:  "metrics-interval",
		Usage: "Queue metrics emission and autoscaler cadence",
		Value: 30 * time.Second,
	}

	TargetQueueSizeFlag = cli.IntFlag{
		Name:  "target-queue-size",
		Usage: "Scheduler soft queue-depth ceiling",
		Value: 200,
	}
	TickerTimeoutFlag = cli.DurationFlag{
		Name:  "ticker-timeout",
		Usage: "Scheduler normal poll cadence",
		Value: 2 * time.Second,
	}

	SubmissionConcurrencyFlag = cli.IntFlag{
		Name:  "submission-concurrency",
		Usage: "Submission Queue initial concurrency",
		Value: 10,
	}
	MaxSubmissionConcurrencyFlag = cli.IntFlag{
		Name:  "max-submission-concurrency",
		Usage: "Submission Queue autoscaler upper bound",
		Value: 20,
	}
	SubmissionRetryAttemptsFlag = cli.IntFlag{
		Name:  "submission-retry-attempts",
		Usage: "Submission Queue retry attempts",
		Value: 5,
	}
	SubmissionRetryDelayFlag = cli.DurationFlag{
		Name:  "submission-retry-delay",
		Usage: "Submission Queue base retry delay",
		Value: 2 * time.Second,
	}

	StoreBackendFlag = cli.StringFlag{
		Name:  "store-backend",
		Usage: `Persistence backend ("sql", "badger", "memory")`,
		Value: string(BackendMemory),
	}
	SQLDSNFlag = cli.StringFlag{
		Name:  "sql-dsn",
		Usage: "DSN for the SQL store backend (required when store-backend=sql)",
	}
	BadgerDirFlag = cli.StringFlag{
		Name:  "badger-dir",
		Usage: "Data directory for the badger store backend",
		Value: "./data/refractor-sub001",
	}

	HTTPListenAddrFlag = cli.StringFlag{
		Name:  "http-addr",
		Usage: "HTTP listen address",
		Value: ":8080",
	}
	CORSOriginsFlag = cli.StringFlag{
		Name:  "cors-origins",
		Usage: "Comma-separated list of allowed CORS origins",
		Value: "*",
	}

	EventsEnabledFlag = cli.BoolFlag{
		Name:  "events-enabled",
		Usage: "Enable the outbound Kafka event publisher",
	}
	KafkaBrokersFlag = cli.StringFlag{
		Name:  "kafka-brokers",
		Usage: "Comma-separated list of Kafka broker addresses",
	}
	KafkaTopicPrefixFlag = cli.StringFlag{
		Name:  "kafka-topic-prefix",
		Usage: "Topic name prefix for published events",
		Value: "refractor",
	}

	// NetworksFlag accepts repeated name=endpoint[,passphrase] entries,
	// e.g. --network stellar:public=https://horizon.stellar.org.
	NetworksFlag = cli.StringSliceFlag{
		Name:  "network",
		Usage: "name=endpoint[,passphrase] network effector parameters, may be repeated",
	}
)

// Flags is every flag this binary registers, in declaration order, grouped
// the way klaytn's nodeFlags/rpcFlags slices are.
var Flags = []cli.Flag{
	ParallelTasksFlag,
	MinParallelTasksFlag,
	MaxParallelTasksFlag,
	AdaptiveConcurrencyFlag,
	RetryAttemptsFlag,
	RetryDelayFlag,
	MetricsIntervalFlag,
	TargetQueueSizeFlag,
	TickerTimeoutFlag,
	SubmissionConcurrencyFlag,
	MaxSubmissionConcurrencyFlag,
	SubmissionRetryAttemptsFlag,
	SubmissionRetryDelayFlag,
	StoreBackendFlag,
	SQLDSNFlag,
	BadgerDirFlag,
	HTTPListenAddrFlag,
	CORSOriginsFlag,
	EventsEnabledFlag,
	KafkaBrokersFlag,
	KafkaTopicPrefixFlag,
	NetworksFlag,
}

// FromContext builds a sanitized Config from a populated cli.Context.
func FromContext(ctx *cli.Context) Config {
	c := Config{
		ParallelTasks:            ctx.Int(ParallelTasksFlag.Name),
		MinParallelTasks:         ctx.Int(MinParallelTasksFlag.Name),
		MaxParallelTasks:         ctx.Int(MaxParallelTasksFlag.Name),
		AdaptiveConcurrency:      ctx.BoolT(AdaptiveConcurrencyFlag.Name),
		RetryAttempts:            ctx.Int(RetryAttemptsFlag.Name),
		RetryDelay:               ctx.Duration(RetryDelayFlag.Name),
		MetricsInterval:          ctx.Duration(MetricsIntervalFlag.Name),
		TargetQueueSize:          ctx.Int(TargetQueueSizeFlag.Name),
		TickerTimeout:            ctx.Duration(TickerTimeoutFlag.Name),
		SubmissionConcurrency:    ctx.Int(SubmissionConcurrencyFlag.Name),
		MaxSubmissionConcurrency: ctx.Int(MaxSubmissionConcurrencyFlag.Name),
		SubmissionRetryAttempts:  ctx.Int(SubmissionRetryAttemptsFlag.Name),
		SubmissionRetryDelay:     ctx.Duration(SubmissionRetryDelayFlag.Name),
		StoreBackend:             StoreBackend(ctx.String(StoreBackendFlag.Name)),
		SQLDSN:                   ctx.String(SQLDSNFlag.Name),
		BadgerDir:                ctx.String(BadgerDirFlag.Name),
		HTTPListenAddr:           ctx.String(HTTPListenAddrFlag.Name),
		CORSOrigins:              splitCSV(ctx.String(CORSOriginsFlag.Name)),
		EventsEnabled:            ctx.Bool(EventsEnabledFlag.Name),
		KafkaBrokers:             splitCSV(ctx.String(KafkaBrokersFlag.Name)),
		KafkaTopicPrefix:         ctx.String(KafkaTopicPrefixFlag.Name),
		Networks:                 parseNetworks(ctx.StringSlice(NetworksFlag.Name)),
	}
	return c.Sanitize()
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseNetworks(entries []string) map[string]NetworkConfig {
	out := map[string]NetworkConfig{}
	for _, e := range entries {
		nameAndRest := strings.SplitN(e, "=", 2)
		if len(nameAndRest) != 2 {
			continue
		}
		name := strings.TrimSpace(nameAndRest[0])
		rest := strings.SplitN(nameAndRest[1], ",", 2)
		nc := NetworkConfig{Endpoint: strings.TrimSpace(rest[0])}
		if len(rest) == 2 {
			nc.Passphrase = strings.TrimSpace(rest[1])
		}
		out[name] = nc
	}
	return out
}
