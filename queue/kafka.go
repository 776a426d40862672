package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raushankrgupta/nima-backend/logging"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes tasks to a Kafka topic. A Consumer on the same
// topic executes them, possibly in another process.
type KafkaDispatcher struct {
	writer messageWriter
	log    logging.Logger
}

func NewKafkaDispatcher(brokers []string, topic string, log logging.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		log: log,
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, t Task) error {
	msg, err := encodeTask(t)
	if err != nil {
		return err
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s task %s: %w", t.Kind, t.ID, err)
	}
	d.log.Info(ctx, "task published", "kind", t.Kind, "id", t.ID)
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// Consumer reads tasks from Kafka and hands them to a local worker pool.
type Consumer struct {
	reader messageReader
	pool   *LocalDispatcher
	log    logging.Logger
}

func NewConsumer(brokers []string, topic, groupID string, pool *LocalDispatcher, log logging.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		pool: pool,
		log:  log,
	}
}

// Run blocks until ctx is cancelled. A message is committed only once its
// task is queued on the pool, so a full pool applies backpressure instead
// of losing tasks.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.log.Error(ctx, "error reading task message", "error", err)
			continue
		}

		t, err := decodeTask(msg)
		if err != nil {
			c.log.Warn(ctx, "dropping malformed task message", "offset", msg.Offset, "error", err)
			c.commit(ctx, msg)
			continue
		}

		if err := c.pool.Enqueue(ctx, t); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// uncommitted; redelivered to the group after a restart
			c.log.Error(ctx, "failed to schedule consumed task", "kind", t.Kind, "id", t.ID, "error", err)
			return err
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error(ctx, "failed to commit task message", "offset", msg.Offset, "error", err)
	}
}

func encodeTask(t Task) (kafka.Message, error) {
	value, err := json.Marshal(t)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(t.ID), Value: value}, nil
}

func decodeTask(msg kafka.Message) (Task, error) {
	var t Task
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return Task{}, err
	}
	if t.Kind == "" || t.ID == "" {
		return Task{}, errors.New("task kind and id are required")
	}
	return t, nil
}
