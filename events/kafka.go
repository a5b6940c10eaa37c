package events

import (
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"time"

	"github.com/Shopify/sarama"

	"github.com/blocktimefinancial/refractor-sub001/errs"
)

// KafkaConfig mirrors klaytn's datasync/chaindatafetcher/kafka.KafkaConfig
// shape, narrowed to what a best-effort outbound event relay needs: no
// consumer-group, partitioner, or replication-factor knobs, since this
// publisher only ever produces.
type KafkaConfig struct {
	Brokers      []string
	RequiredAcks sarama.RequiredAcks
	Timeout      time.Duration

	TLSEnabled bool
	TLSCAFile  string
}

// GetDefaultKafkaConfig returns the conservative defaults klaytn's fetcher
// ships: leader-only ack, short produce timeout, plaintext.
func GetDefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		RequiredAcks: sarama.WaitForLocal,
		Timeout:      10 * time.Second,
	}
}

func (c *KafkaConfig) saramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = c.RequiredAcks
	cfg.Producer.Timeout = c.Timeout
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	if c.TLSEnabled {
		tlsCfg := &tls.Config{}
		if c.TLSCAFile != "" {
			pem, err := ioutil.ReadFile(c.TLSCAFile)
			if err != nil {
				return nil, errs.Wrap(errs.KindFatal, err, "reading kafka ca file")
			}
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(pem)
			tlsCfg.RootCAs = pool
		}
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = tlsCfg
	}
	return cfg, nil
}

// KafkaPublisher publishes events to a Kafka cluster via a synchronous
// sarama producer, grounded in klaytn's
// datasync/chaindatafetcher/kafka.repository.Publish — generalized from
// publishing chain-block payloads to publishing arbitrary JSON event
// payloads.
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher dials brokers and returns a ready KafkaPublisher.
func NewKafkaPublisher(cfg *KafkaConfig) (*KafkaPublisher, error) {
	saramaCfg, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, err, "dialing kafka brokers")
	}
	return &KafkaPublisher{producer: producer}, nil
}

// Publish sends payload as the value of a new message on topic, keyed by
// nothing in particular — ordering across events is not a correctness
// requirement for observability.
func (k *KafkaPublisher) Publish(topic string, payload []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(payload),
	}
	_, _, err := k.producer.SendMessage(msg)
	if err != nil {
		return errs.Wrap(errs.KindTransientNetwork, err, "publishing event to kafka")
	}
	return nil
}

// Close releases the underlying producer's connections.
func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
