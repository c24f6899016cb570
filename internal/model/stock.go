package model

import "time"

type StockRecord struct {
	VariantID string    `db:"variant_id" json:"variant_id"`
	OnHand    int64     `db:"on_hand" json:"on_hand"`
	Reserved  int64     `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (r StockRecord) Available() int64 {
	return r.OnHand - r.Reserved
}

// Availability is a read-only snapshot handed to callers outside the ledger.
type Availability struct {
	VariantID string `json:"variant_id"`
	OnHand    int64  `json:"on_hand"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

func (r StockRecord) Snapshot() Availability {
	return Availability{
		VariantID: r.VariantID,
		OnHand:    r.OnHand,
		Reserved:  r.Reserved,
		Available: r.Available(),
	}
}

// StockReconciliation compares on-hand with what the cost batches still hold.
type StockReconciliation struct {
	VariantID      string `json:"variant_id"`
	OnHand         int64  `json:"on_hand"`
	BatchRemaining int64  `json:"batch_remaining"`
	Balanced       bool   `json:"balanced"`
}

type MovementType string

const (
	MovementReceive MovementType = "receive"
	MovementReserve MovementType = "reserve"
	MovementRelease MovementType = "release"
	MovementCommit  MovementType = "commit"
	MovementAdjust  MovementType = "adjust"
	MovementExpire  MovementType = "expire"
)

type ReferenceType string

const (
	ReferenceReservation   ReferenceType = "reservation"
	ReferencePurchaseOrder ReferenceType = "purchase_order"
	ReferenceAdjustment    ReferenceType = "adjustment"
)

// StockMovement is the audit row written with every ledger mutation.
type StockMovement struct {
	ID             string        `db:"id" json:"id"`
	VariantID      string        `db:"variant_id" json:"variant_id"`
	MovementType   MovementType  `db:"movement_type" json:"movement_type"`
	QuantityChange int64         `db:"quantity_change" json:"quantity_change"`
	OnHandBefore   int64         `db:"on_hand_before" json:"on_hand_before"`
	OnHandAfter    int64         `db:"on_hand_after" json:"on_hand_after"`
	ReservedBefore int64         `db:"reserved_before" json:"reserved_before"`
	ReservedAfter  int64         `db:"reserved_after" json:"reserved_after"`
	ReferenceType  ReferenceType `db:"reference_type" json:"reference_type"`
	ReferenceID    string        `db:"reference_id" json:"reference_id"`
	Notes          string        `db:"notes" json:"notes"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
}

// StockChange is emitted after a ledger transaction commits.
type StockChange struct {
	Availability
	MovementType MovementType `json:"movement_type"`
	ReferenceID  string       `json:"reference_id,omitempty"`
	OccurredAt   time.Time    `json:"occurred_at"`
}
