package availability

import (
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

const EventStockChanged = "StockChanged"

type StockChangedEvent struct {
	EventID   string       `json:"event_id"`
	EventType string       `json:"event_type"`
	Payload   StockPayload `json:"payload"`
	Timestamp time.Time    `json:"timestamp"`
}

type StockPayload struct {
	VariantID    string             `json:"variant_id"`
	OnHand       int64              `json:"on_hand"`
	Reserved     int64              `json:"reserved"`
	Available    int64              `json:"available"`
	InStock      bool               `json:"in_stock"`
	MovementType model.MovementType `json:"movement_type"`
	ReferenceID  string             `json:"reference_id,omitempty"`
}

func payloadOf(c model.StockChange) StockPayload {
	return StockPayload{
		VariantID:    c.VariantID,
		OnHand:       c.OnHand,
		Reserved:     c.Reserved,
		Available:    c.Available,
		InStock:      c.Available > 0,
		MovementType: c.MovementType,
		ReferenceID:  c.ReferenceID,
	}
}
