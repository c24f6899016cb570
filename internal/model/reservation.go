package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationState string

const (
	ReservationActive    ReservationState = "active"
	ReservationCommitted ReservationState = "committed"
	ReservationReleased  ReservationState = "released"
	ReservationExpired   ReservationState = "expired"
)

// CanTransition reports whether s may move to next. Only active holds move,
// and only into one of the terminal states.
func (s ReservationState) CanTransition(next ReservationState) bool {
	switch s {
	case ReservationActive:
		switch next {
		case ReservationCommitted, ReservationReleased, ReservationExpired:
			return true
		case ReservationActive:
			return false
		}
		return false
	case ReservationCommitted, ReservationReleased, ReservationExpired:
		return false
	}
	return false
}

func (s ReservationState) Terminal() bool {
	switch s {
	case ReservationCommitted, ReservationReleased, ReservationExpired:
		return true
	case ReservationActive:
		return false
	}
	return false
}

type Reservation struct {
	ID          string           `db:"id" json:"id"`
	VariantID   string           `db:"variant_id" json:"variant_id"`
	Quantity    int64            `db:"quantity" json:"quantity"`
	HolderRef   string           `db:"holder_ref" json:"holder_ref"`
	State       ReservationState `db:"state" json:"state"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	ExpiresAt   *time.Time       `db:"expires_at" json:"expires_at,omitempty"`
	ClosedAt    *time.Time       `db:"closed_at" json:"closed_at,omitempty"`
	TotalCost   decimal.Decimal  `db:"total_cost" json:"total_cost"`
	Allocations []Allocation     `db:"-" json:"allocations,omitempty"`
}

// ExpiredAt reports whether the hold has a TTL that lapsed at or before now.
func (r *Reservation) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}
