package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/costing"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/metrics"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errSkip aborts a sweep transaction that lost its race. It never leaves the package.
var errSkip = errors.New("reservation no longer expirable")

// Manager owns the hold lifecycle: Active -> Committed | Released | Expired.
type Manager struct {
	ledger    *ledger.Ledger
	allocator *costing.Allocator
	metrics   *metrics.Metrics
	logger    logger.ZapLogger
}

func NewManager(l *ledger.Ledger, allocator *costing.Allocator, m *metrics.Metrics, log logger.ZapLogger) *Manager {
	return &Manager{
		ledger:    l,
		allocator: allocator,
		metrics:   m,
		logger:    log,
	}
}

// Hold reserves qty for holderRef. ttl <= 0 creates a hold without expiry.
// Either the full quantity is held or nothing is.
func (m *Manager) Hold(ctx context.Context, variantID string, qty int64, holderRef string, ttl time.Duration) (*model.Reservation, error) {
	res, err := m.hold(ctx, variantID, qty, holderRef, ttl)
	m.metrics.Hold(err)
	if err != nil {
		if !errors.Is(err, inventory.ErrOutOfStock) {
			m.logger.Warn("hold failed",
				zap.String("variant_id", variantID),
				zap.String("holder_ref", holderRef),
				zap.Int64("quantity", qty),
				zap.Error(err),
			)
		}
		return nil, err
	}

	m.logger.Debug("stock held",
		zap.String("reservation_id", res.ID),
		zap.String("variant_id", variantID),
		zap.String("holder_ref", holderRef),
		zap.Int64("quantity", qty),
	)
	return res, nil
}

func (m *Manager) hold(ctx context.Context, variantID string, qty int64, holderRef string, ttl time.Duration) (*model.Reservation, error) {
	if variantID == "" || holderRef == "" {
		return nil, fmt.Errorf("%w: variant id and holder ref are required", inventory.ErrInvalidInput)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %d", inventory.ErrInvalidInput, qty)
	}

	var res *model.Reservation
	err := m.ledger.Run(ctx, []string{inventory.VariantKey(variantID)}, func(tx *ledger.Tx) error {
		now := tx.Now()
		res = &model.Reservation{
			ID:        uuid.New().String(),
			VariantID: variantID,
			Quantity:  qty,
			HolderRef: holderRef,
			State:     model.ReservationActive,
			CreatedAt: now,
		}
		if ttl > 0 {
			expiresAt := now.Add(ttl)
			res.ExpiresAt = &expiresAt
		}

		if _, err := tx.Reserve(ctx, variantID, qty, reservationRef(res)); err != nil {
			return err
		}
		return tx.Records().SaveReservation(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Extend pushes the expiry of an active hold to now + ttl.
func (m *Manager) Extend(ctx context.Context, id string, ttl time.Duration) (*model.Reservation, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", inventory.ErrInvalidInput)
	}
	return m.withActive(ctx, id, func(tx *ledger.Tx, res *model.Reservation) error {
		expiresAt := tx.Now().Add(ttl)
		res.ExpiresAt = &expiresAt
		return nil
	})
}

// Pin drops the expiry of an active hold, e.g. once a cart becomes a confirmed order.
func (m *Manager) Pin(ctx context.Context, id string) (*model.Reservation, error) {
	return m.withActive(ctx, id, func(_ *ledger.Tx, res *model.Reservation) error {
		res.ExpiresAt = nil
		return nil
	})
}

func (m *Manager) Release(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := m.withActive(ctx, id, func(tx *ledger.Tx, res *model.Reservation) error {
		if _, err := tx.Release(ctx, res.VariantID, res.Quantity, reservationRef(res)); err != nil {
			return err
		}
		return closeAs(tx, res, model.ReservationReleased)
	})
	if err != nil {
		m.logTransitionFailure("release", id, err)
		return nil, err
	}
	m.metrics.Transition(string(model.ReservationReleased))
	return res, nil
}

// Commit turns the hold into a permanent deduction and prices it from the
// oldest batches, all in one transaction.
func (m *Manager) Commit(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := m.withActive(ctx, id, func(tx *ledger.Tx, res *model.Reservation) error {
		if _, err := tx.Commit(ctx, res.VariantID, res.Quantity, reservationRef(res)); err != nil {
			return err
		}
		alloc, err := m.allocator.Allocate(ctx, tx, res.VariantID, res.Quantity)
		if err != nil {
			return err
		}
		res.Allocations = alloc.Allocations
		res.TotalCost = alloc.TotalCost
		return closeAs(tx, res, model.ReservationCommitted)
	})
	if err != nil {
		m.logTransitionFailure("commit", id, err)
		return nil, err
	}

	m.metrics.Transition(string(model.ReservationCommitted))
	m.metrics.CostOfGoods(res.TotalCost.InexactFloat64())
	m.logger.Info("reservation committed",
		zap.String("reservation_id", res.ID),
		zap.String("variant_id", res.VariantID),
		zap.Int64("quantity", res.Quantity),
		zap.String("total_cost", res.TotalCost.String()),
	)
	return res, nil
}

// Expire releases a lapsed hold. It reports false without error when the hold
// was closed or extended concurrently.
func (m *Manager) Expire(ctx context.Context, id string) (bool, error) {
	_, err := m.withActive(ctx, id, func(tx *ledger.Tx, res *model.Reservation) error {
		if !res.ExpiredAt(tx.Now()) {
			return errSkip
		}
		if _, err := tx.Expire(ctx, res.VariantID, res.Quantity, reservationRef(res)); err != nil {
			return err
		}
		return closeAs(tx, res, model.ReservationExpired)
	})
	switch {
	case err == nil:
		m.metrics.Transition(string(model.ReservationExpired))
		return true, nil
	case errors.Is(err, errSkip), isStateConflict(err):
		return false, nil
	default:
		return false, err
	}
}

// ReleaseByHolder releases every active hold of holderRef. Holds closed
// concurrently are skipped.
func (m *Manager) ReleaseByHolder(ctx context.Context, holderRef string) (int, error) {
	if holderRef == "" {
		return 0, fmt.Errorf("%w: holder ref is required", inventory.ErrInvalidInput)
	}
	holds, err := m.ledger.Repository().ListReservationsByHolder(ctx, holderRef)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, h := range holds {
		if h.State != model.ReservationActive {
			continue
		}
		if _, err := m.Release(ctx, h.ID); err != nil {
			if isStateConflict(err) {
				continue
			}
			return released, err
		}
		released++
	}
	return released, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*model.Reservation, error) {
	return m.ledger.Repository().GetReservation(ctx, id)
}

func (m *Manager) ListByHolder(ctx context.Context, holderRef string) ([]model.Reservation, error) {
	return m.ledger.Repository().ListReservationsByHolder(ctx, holderRef)
}

// stateConflictError marks a transition attempted on a closed reservation, as
// opposed to an ErrInvalidState raised by the ledger arithmetic.
type stateConflictError struct {
	id    string
	state model.ReservationState
}

func (e *stateConflictError) Error() string {
	return fmt.Sprintf("%s: reservation %s is %s", inventory.ErrInvalidState, e.id, e.state)
}

func (e *stateConflictError) Unwrap() error { return inventory.ErrInvalidState }

func isStateConflict(err error) bool {
	var sc *stateConflictError
	return errors.As(err, &sc)
}

// withActive locks the reservation's variant, re-reads the reservation and
// runs fn only if it is still active. fn's changes to res are saved.
func (m *Manager) withActive(ctx context.Context, id string, fn func(tx *ledger.Tx, res *model.Reservation) error) (*model.Reservation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: reservation id is required", inventory.ErrInvalidInput)
	}
	current, err := m.ledger.Repository().GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	var res *model.Reservation
	err = m.ledger.Run(ctx, []string{inventory.VariantKey(current.VariantID)}, func(tx *ledger.Tx) error {
		r, err := tx.Records().GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.State != model.ReservationActive {
			return &stateConflictError{id: id, state: r.State}
		}
		if err := fn(tx, r); err != nil {
			return err
		}
		res = r
		return tx.Records().SaveReservation(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func closeAs(tx *ledger.Tx, res *model.Reservation, state model.ReservationState) error {
	if !res.State.CanTransition(state) {
		return &stateConflictError{id: res.ID, state: res.State}
	}
	now := tx.Now()
	res.State = state
	res.ClosedAt = &now
	return nil
}

func reservationRef(res *model.Reservation) ledger.Reference {
	return ledger.Reference{
		Type:  model.ReferenceReservation,
		ID:    res.ID,
		Notes: res.HolderRef,
	}
}

func (m *Manager) logTransitionFailure(op, id string, err error) {
	fields := []zap.Field{zap.String("op", op), zap.String("reservation_id", id), zap.Error(err)}
	switch {
	case errors.Is(err, inventory.ErrInsufficientBatches):
		m.logger.Error("ledger and batches diverged, reconciliation required", fields...)
	case errors.Is(err, inventory.ErrInvalidState):
		m.logger.Warn("illegal reservation transition", fields...)
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, inventory.ErrInvalidInput):
		m.logger.Debug("reservation transition rejected", fields...)
	default:
		m.logger.Error("reservation transition failed", fields...)
	}
}
