package listener

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
)

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type InventoryListener struct {
	consumer MessageReader
	uc       inventory.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewInventoryListener(consumer MessageReader, uc inventory.UseCase, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  time.Second,
	}
}

func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting Inventory Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Inventory Kafka Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.backoff):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type OrderEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   OrderPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type OrderPayload struct {
	OrderID        string   `json:"order_id"`
	HolderRef      string   `json:"holder_ref"`
	ReservationIDs []string `json:"reservation_ids"`
}

func (l *InventoryListener) processMessage(ctx context.Context, value []byte) {
	var event OrderEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	switch event.EventType {
	case EventOrderPaid:
		l.onOrderPaid(ctx, event.Payload)
	case EventOrderCancelled:
		l.onOrderCancelled(ctx, event.Payload)
	}
}

func (l *InventoryListener) onOrderPaid(ctx context.Context, p OrderPayload) {
	l.logger.Info("Processing OrderPaid event", zap.String("order_id", p.OrderID), zap.Int("reservations", len(p.ReservationIDs)))

	for _, id := range p.ReservationIDs {
		out, err := l.uc.CommitHold(ctx, id)
		if err != nil {
			// Redelivered events find the hold already committed.
			if errors.Is(err, inventory.ErrInvalidState) {
				l.logger.Warn("Reservation no longer active",
					zap.String("order_id", p.OrderID),
					zap.String("reservation_id", id),
					zap.Error(err),
				)
				continue
			}
			l.logger.Error("Failed to commit reservation for order",
				zap.String("order_id", p.OrderID),
				zap.String("reservation_id", id),
				zap.Error(err),
			)
			continue
		}
		l.logger.Debug("Committed reservation",
			zap.String("reservation_id", id),
			zap.String("total_cost", out.TotalCost.String()),
		)
	}
}

func (l *InventoryListener) onOrderCancelled(ctx context.Context, p OrderPayload) {
	l.logger.Info("Processing OrderCancelled event", zap.String("order_id", p.OrderID))

	if len(p.ReservationIDs) == 0 {
		if p.HolderRef == "" {
			l.logger.Warn("OrderCancelled event without reservations or holder", zap.String("order_id", p.OrderID))
			return
		}
		n, err := l.uc.ReleaseHolder(ctx, p.HolderRef)
		if err != nil {
			l.logger.Error("Failed to release holds for holder",
				zap.String("order_id", p.OrderID),
				zap.String("holder_ref", p.HolderRef),
				zap.Error(err),
			)
			return
		}
		l.logger.Info("Released holds for holder", zap.String("holder_ref", p.HolderRef), zap.Int("released", n))
		return
	}

	for _, id := range p.ReservationIDs {
		err := l.uc.ReleaseHold(ctx, id)
		if err == nil || errors.Is(err, inventory.ErrInvalidState) {
			continue
		}
		l.logger.Error("Failed to release reservation for order",
			zap.String("order_id", p.OrderID),
			zap.String("reservation_id", id),
			zap.Error(err),
		)
	}
}
