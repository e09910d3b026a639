package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every snapshot as one CSV message keyed by host.
type KafkaSink struct {
	w   MessageWriter
	key []byte
}

// NewKafkaWriter returns a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaSink creates a KafkaSink. key partitions the feed, typically the
// host name.
func NewKafkaSink(w MessageWriter, key string) *KafkaSink {
	return &KafkaSink{w: w, key: []byte(key)}
}

// Emit implements Sink.
func (s *KafkaSink) Emit(ctx context.Context, snap Snapshot) error {
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   s.key,
		Value: []byte(snap.CSV()),
		Time:  snap.Time,
		Headers: []kafka.Header{
			{Key: "pages_sharing", Value: []byte(strconv.FormatInt(snap.Sharing, 10))},
		},
	})
}

// Close implements Sink.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
