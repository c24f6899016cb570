package availability

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/google/uuid"
)

// Publisher is satisfied by broker.KafkaProducer.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaNotifier emits one StockChanged event per change, keyed by variant so
// a variant's events stay ordered within its partition.
type KafkaNotifier struct {
	producer Publisher
}

func NewKafkaNotifier(producer Publisher) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) StockChanged(ctx context.Context, changes []model.StockChange) error {
	var errs []error
	for _, c := range changes {
		event := StockChangedEvent{
			EventID:   uuid.New().String(),
			EventType: EventStockChanged,
			Payload:   payloadOf(c),
			Timestamp: c.OccurredAt,
		}
		data, err := json.Marshal(event)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := n.producer.Publish(ctx, c.VariantID, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
