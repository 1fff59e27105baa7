// internal/publisher/kafka.go
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/events"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
)

const writeTimeout = 10 * time.Second

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MessageWriter is the part of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RealizationMessage is the JSON value of each published record.
type RealizationMessage struct {
	EventType   events.EventType `json:"event_type"`
	Wallet      string           `json:"wallet"`
	RunID       string           `json:"run_id"`
	EventTime   time.Time        `json:"event_time"`
	Realization *pnl.Realization `json:"realization,omitempty"`
	Shortfall   *Shortfall       `json:"shortfall,omitempty"`
}

// Shortfall describes a sale beyond tracked inventory.
type Shortfall struct {
	TradeID   string  `json:"trade_id"`
	AssetID   string  `json:"asset_id"`
	Requested float64 `json:"requested"`
	Unmatched float64 `json:"unmatched"`
}

// KafkaPublisher streams realizations to a topic keyed by wallet id so the
// events of one wallet stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
	subs   []events.Subscription
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return NewWithWriter(writer, logger), nil
}

// NewWithWriter wraps an existing writer.
func NewWithWriter(writer MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		logger: logger.Named("kafka"),
	}
}

// Attach subscribes the publisher to realized sales and shortfalls.
func (p *KafkaPublisher) Attach(bus *events.Bus) {
	p.subs = append(p.subs,
		bus.SubscribeFunc(events.SaleRealized, p.handle),
		bus.SubscribeFunc(events.InventoryShortfall, p.handle),
	)
}

func (p *KafkaPublisher) handle(ctx context.Context, event events.Event) error {
	var msg RealizationMessage
	switch e := event.(type) {
	case *events.SaleRealizedEvent:
		r := e.Realization
		msg = RealizationMessage{
			EventType:   e.EventType,
			Wallet:      e.WalletID,
			RunID:       e.RunID,
			EventTime:   e.EventTime,
			Realization: &r,
		}
	case *events.InventoryShortfallEvent:
		msg = RealizationMessage{
			EventType: e.EventType,
			Wallet:    e.WalletID,
			RunID:     e.RunID,
			EventTime: e.EventTime,
			Shortfall: &Shortfall{
				TradeID:   e.TradeID,
				AssetID:   e.AssetID,
				Requested: e.Requested,
				Unmatched: e.Unmatched,
			},
		}
	default:
		return nil
	}
	return p.Publish(ctx, msg)
}

// Publish writes one message with the wallet as key.
func (p *KafkaPublisher) Publish(ctx context.Context, msg RealizationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realization: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Wallet),
		Value: data,
		Time:  msg.EventTime,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
		},
	})
	if err != nil {
		p.logger.Error("Failed to publish realization",
			zap.String("wallet", msg.Wallet),
			zap.String("event_type", string(msg.EventType)),
			zap.Error(err))
		return fmt.Errorf("publish to kafka: %w", err)
	}
	return nil
}

// Close unsubscribes and closes the writer
func (p *KafkaPublisher) Close() error {
	for _, s := range p.subs {
		s.Unsubscribe()
	}
	p.subs = nil
	return p.writer.Close()
}
