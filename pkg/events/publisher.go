// Package events publishes finalized trades to Kafka for downstream
// consumers (indexers, settlement monitors).
package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
)

const eventVersion = 1

// TradeEvent is the message value; Type is "trade.settled", "trade.failed"
// or "trade.rolled_back".
type TradeEvent struct {
	V     int           `json:"v"`
	Type  string        `json:"type"`
	Trade *engine.Trade `json:"trade"`
}

func EventType(t *engine.Trade) string {
	return "trade." + strings.ToLower(t.SettlementStatus.String())
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is an engine.TradeJournal that writes one message per trade,
// keyed by pair so a pair's trades stay ordered within a partition.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher returns an async publisher: SaveTrade only enqueues and
// delivery failures are logged from the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.SugaredLogger) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					logger.Warnw("trade_event_delivery_failed", "topic", topic, "messages", len(msgs), "err", err)
				}
			},
		},
		timeout: time.Second,
	}
}

func (p *Publisher) SaveTrade(t *engine.Trade) error {
	msg, err := Message(t)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

// Message encodes t as a Kafka message.
func Message(t *engine.Trade) (kafka.Message, error) {
	typ := EventType(t)
	value, err := json.Marshal(TradeEvent{V: eventVersion, Type: typ, Trade: t})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode trade %s: %w", t.ID, err)
	}
	return kafka.Message{
		Key:   []byte(t.Pair),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(typ)},
			{Key: "trade_id", Value: []byte(t.ID)},
		},
		Time: t.Timestamp,
	}, nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error { return p.writer.Close() }

var _ engine.TradeJournal = (*Publisher)(nil)
