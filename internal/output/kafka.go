package output

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/truebasic2011/mercury/internal/core"
)

const (
	defaultKafkaBatchSize    = 100
	defaultKafkaBatchTimeout = 100 * time.Millisecond
	defaultKafkaCompression  = "snappy"
	defaultKafkaMaxAttempts  = 3
	kafkaWriteTimeout        = 10 * time.Second

	// writerBatchTimeout bounds how long the writer holds a partial batch;
	// batching happens in the sink, so the writer should send at once.
	writerBatchTimeout = time.Millisecond
)

// KafkaConfig configures the Kafka sink for fingerprint records.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none|gzip|snappy|lz4|zstd
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each record as one message. Messages are keyed by
// producer thread so the hash balancer keeps every thread on one partition
// and per-thread order survives.
type KafkaSink struct {
	cfg     KafkaConfig
	writer  messageWriter
	pending []kafka.Message
	stats   SinkStats

	now      func() time.Time
	lastSend time.Time
}

// NewKafkaSink validates cfg and creates the writer. No connection is made
// until the first batch is sent.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers required: %w", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required: %w", core.ErrConfigInvalid)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultKafkaBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultKafkaBatchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultKafkaMaxAttempts
	}
	if cfg.Compression == "" {
		cfg.Compression = defaultKafkaCompression
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: writerBatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		RequiredAcks: kafka.RequireOne,
	}
	switch cfg.Compression {
	case "none":
	case "gzip":
		w.Compression = kafka.Gzip
	case "snappy":
		w.Compression = kafka.Snappy
	case "lz4":
		w.Compression = kafka.Lz4
	case "zstd":
		w.Compression = kafka.Zstd
	default:
		return nil, fmt.Errorf("kafka: compression %q: %w", cfg.Compression, core.ErrConfigInvalid)
	}

	slog.Info("kafka sink configured",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"batch_size", cfg.BatchSize,
		"compression", cfg.Compression,
	)
	return newKafkaSink(cfg, w), nil
}

func newKafkaSink(cfg KafkaConfig, w messageWriter) *KafkaSink {
	return &KafkaSink{
		cfg:     cfg,
		writer:  w,
		pending: make([]kafka.Message, 0, cfg.BatchSize),
		now:     time.Now,
	}
}

// Write implements Sink. Records are batched locally and sent once a full
// batch has accumulated.
func (k *KafkaSink) Write(rec core.Record) error {
	k.pending = append(k.pending, kafka.Message{
		Key:   []byte("thread-" + strconv.Itoa(rec.Thread)),
		Value: rec.Payload,
		Time:  rec.Timestamp,
	})
	if len(k.pending) >= k.cfg.BatchSize {
		return k.send()
	}
	return nil
}

// Flush implements Sink. The coordinator flushes on every idle round, so a
// partial batch is sent at most once per BatchTimeout.
func (k *KafkaSink) Flush() error {
	if len(k.pending) == 0 || k.now().Sub(k.lastSend) < k.cfg.BatchTimeout {
		return nil
	}
	return k.send()
}

// send writes every pending message. A failed batch is counted as dropped;
// the sink stays usable for later batches.
func (k *KafkaSink) send() error {
	if len(k.pending) == 0 {
		return nil
	}
	k.lastSend = k.now()
	batch := k.pending
	k.pending = k.pending[:0]

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, batch...); err != nil {
		k.stats.Dropped += uint64(len(batch))
		return fmt.Errorf("kafka write %d messages: %w", len(batch), err)
	}
	k.stats.Records += uint64(len(batch))
	for i := range batch {
		k.stats.Bytes += uint64(len(batch[i].Value))
	}
	return nil
}

// Close implements Sink.
func (k *KafkaSink) Close() error {
	err := k.send()
	if cerr := k.writer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	slog.Info("kafka sink closed",
		"total_reported", k.stats.Records,
		"total_dropped", k.stats.Dropped,
	)
	return err
}

// Stats implements Sink.
func (k *KafkaSink) Stats() SinkStats { return k.stats }
