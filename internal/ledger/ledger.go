package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/metrics"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier receives the stock changes of a transaction after it commits.
type Notifier interface {
	StockChanged(ctx context.Context, changes []model.StockChange) error
}

// Reference ties a movement to the event that caused it.
type Reference struct {
	Type  model.ReferenceType
	ID    string
	Notes string
}

// Ledger owns every StockRecord. Other components change stock only through
// a ledger Tx obtained from Run.
type Ledger struct {
	repo      inventory.Repository
	notifiers []Notifier
	metrics   *metrics.Metrics
	logger    logger.ZapLogger
	now       func() time.Time
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifiers = append(l.notifiers, n) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(repo inventory.Repository, log logger.ZapLogger, opts ...Option) *Ledger {
	l := &Ledger{
		repo:   repo,
		logger: log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

func (l *Ledger) Repository() inventory.Repository {
	return l.repo
}

// Run executes fn as one transaction holding the given lock keys. Stock
// changes made through tx are published only after the transaction commits.
func (l *Ledger) Run(ctx context.Context, keys []string, fn func(tx *Tx) error) error {
	var changes []model.StockChange
	err := l.repo.Transact(ctx, keys, func(itx inventory.Tx) error {
		t := &Tx{l: l, tx: itx, locked: make(map[string]struct{}, len(keys))}
		for _, k := range keys {
			t.locked[k] = struct{}{}
		}
		if err := fn(t); err != nil {
			return err
		}
		changes = t.changes
		return nil
	})
	if err != nil {
		return err
	}
	l.notify(ctx, changes)
	return nil
}

func (l *Ledger) notify(ctx context.Context, changes []model.StockChange) {
	if len(changes) == 0 {
		return
	}
	for _, n := range l.notifiers {
		if err := n.StockChanged(ctx, changes); err != nil {
			l.logger.Warn("stock change notification failed",
				zap.Int("changes", len(changes)),
				zap.Error(err),
			)
		}
	}
}

func (l *Ledger) Receive(ctx context.Context, variantID string, qty int64, ref Reference) (model.Availability, error) {
	return l.single(ctx, variantID, func(ctx context.Context, tx *Tx) (model.StockRecord, error) {
		return tx.Receive(ctx, variantID, qty, ref)
	})
}

func (l *Ledger) Reserve(ctx context.Context, variantID string, qty int64, ref Reference) (model.Availability, error) {
	return l.single(ctx, variantID, func(ctx context.Context, tx *Tx) (model.StockRecord, error) {
		return tx.Reserve(ctx, variantID, qty, ref)
	})
}

func (l *Ledger) Release(ctx context.Context, variantID string, qty int64, ref Reference) (model.Availability, error) {
	return l.single(ctx, variantID, func(ctx context.Context, tx *Tx) (model.StockRecord, error) {
		return tx.Release(ctx, variantID, qty, ref)
	})
}

func (l *Ledger) Commit(ctx context.Context, variantID string, qty int64, ref Reference) (model.Availability, error) {
	return l.single(ctx, variantID, func(ctx context.Context, tx *Tx) (model.StockRecord, error) {
		return tx.Commit(ctx, variantID, qty, ref)
	})
}

// Adjust changes on-hand without touching cost batches. Callers that keep
// batches adjust through Run so both change together.
func (l *Ledger) Adjust(ctx context.Context, variantID string, delta int64, ref Reference) (model.Availability, error) {
	return l.single(ctx, variantID, func(ctx context.Context, tx *Tx) (model.StockRecord, error) {
		return tx.Adjust(ctx, variantID, delta, ref)
	})
}

// Availability reads a committed snapshot. Unknown variants read as zero.
func (l *Ledger) Availability(ctx context.Context, variantID string) (model.Availability, error) {
	if variantID == "" {
		return model.Availability{}, fmt.Errorf("%w: variant id is required", inventory.ErrInvalidInput)
	}
	rec, err := l.repo.GetStock(ctx, variantID)
	if err != nil {
		return model.Availability{}, err
	}
	return rec.Snapshot(), nil
}

func (l *Ledger) single(ctx context.Context, variantID string, fn func(ctx context.Context, tx *Tx) (model.StockRecord, error)) (model.Availability, error) {
	var rec model.StockRecord
	err := l.Run(ctx, []string{inventory.VariantKey(variantID)}, func(tx *Tx) error {
		var err error
		rec, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		return model.Availability{}, err
	}
	return rec.Snapshot(), nil
}

// Tx is one ledger transaction. It is valid only inside the Run callback.
type Tx struct {
	l       *Ledger
	tx      inventory.Tx
	locked  map[string]struct{}
	changes []model.StockChange
}

// Records exposes the non-stock rows of the transaction.
func (t *Tx) Records() inventory.RecordTx {
	return t.tx
}

func (t *Tx) Now() time.Time {
	return t.l.Now()
}

// Stock reads a locked variant's record as this transaction sees it.
func (t *Tx) Stock(ctx context.Context, variantID string) (model.StockRecord, error) {
	if _, ok := t.locked[inventory.VariantKey(variantID)]; !ok {
		return model.StockRecord{}, fmt.Errorf("%w: variant %s is not locked by this transaction", inventory.ErrInvalidState, variantID)
	}
	rec, err := t.tx.GetStock(ctx, variantID)
	if err != nil {
		return model.StockRecord{}, err
	}
	rec.VariantID = variantID
	return rec, nil
}

func (t *Tx) Receive(ctx context.Context, variantID string, qty int64, ref Reference) (model.StockRecord, error) {
	return t.mutate(ctx, variantID, model.MovementReceive, qty, qty, ref, func(rec model.StockRecord) (model.StockRecord, error) {
		return receive(rec, qty)
	})
}

func (t *Tx) Reserve(ctx context.Context, variantID string, qty int64, ref Reference) (model.StockRecord, error) {
	return t.mutate(ctx, variantID, model.MovementReserve, qty, qty, ref, func(rec model.StockRecord) (model.StockRecord, error) {
		return reserve(rec, qty)
	})
}

func (t *Tx) Release(ctx context.Context, variantID string, qty int64, ref Reference) (model.StockRecord, error) {
	return t.mutate(ctx, variantID, model.MovementRelease, qty, -qty, ref, func(rec model.StockRecord) (model.StockRecord, error) {
		return release(rec, qty)
	})
}

// Expire is a release recorded as an expiry in the movement log.
func (t *Tx) Expire(ctx context.Context, variantID string, qty int64, ref Reference) (model.StockRecord, error) {
	return t.mutate(ctx, variantID, model.MovementExpire, qty, -qty, ref, func(rec model.StockRecord) (model.StockRecord, error) {
		return release(rec, qty)
	})
}

func (t *Tx) Commit(ctx context.Context, variantID string, qty int64, ref Reference) (model.StockRecord, error) {
	return t.mutate(ctx, variantID, model.MovementCommit, qty, -qty, ref, func(rec model.StockRecord) (model.StockRecord, error) {
		return commit(rec, qty)
	})
}

func (t *Tx) Adjust(ctx context.Context, variantID string, delta int64, ref Reference) (model.StockRecord, error) {
	if delta == 0 {
		err := fmt.Errorf("%w: adjustment delta must not be zero", inventory.ErrInvalidInput)
		t.l.metrics.Mutation(string(model.MovementAdjust), err)
		return model.StockRecord{}, err
	}
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	return t.mutate(ctx, variantID, model.MovementAdjust, qty, delta, ref, func(rec model.StockRecord) (model.StockRecord, error) {
		return adjust(rec, delta)
	})
}

func (t *Tx) mutate(
	ctx context.Context,
	variantID string,
	movementType model.MovementType,
	qty int64,
	change int64,
	ref Reference,
	op func(model.StockRecord) (model.StockRecord, error),
) (model.StockRecord, error) {
	rec, err := t.mutateRecord(ctx, variantID, movementType, qty, change, ref, op)
	t.l.metrics.Mutation(string(movementType), err)
	return rec, err
}

func (t *Tx) mutateRecord(
	ctx context.Context,
	variantID string,
	movementType model.MovementType,
	qty int64,
	change int64,
	ref Reference,
	op func(model.StockRecord) (model.StockRecord, error),
) (model.StockRecord, error) {
	if variantID == "" {
		return model.StockRecord{}, fmt.Errorf("%w: variant id is required", inventory.ErrInvalidInput)
	}
	if qty <= 0 {
		return model.StockRecord{}, fmt.Errorf("%w: quantity must be positive, got %d", inventory.ErrInvalidInput, qty)
	}
	if _, ok := t.locked[inventory.VariantKey(variantID)]; !ok {
		return model.StockRecord{}, fmt.Errorf("%w: variant %s is not locked by this transaction", inventory.ErrInvalidState, variantID)
	}

	before, err := t.tx.GetStock(ctx, variantID)
	if err != nil {
		return model.StockRecord{}, err
	}
	before.VariantID = variantID

	after, err := op(before)
	if err != nil {
		return before, err
	}

	now := t.Now()
	after.UpdatedAt = now
	if err := t.tx.SaveStock(ctx, &after); err != nil {
		return before, err
	}

	movement := &model.StockMovement{
		ID:             uuid.New().String(),
		VariantID:      variantID,
		MovementType:   movementType,
		QuantityChange: change,
		OnHandBefore:   before.OnHand,
		OnHandAfter:    after.OnHand,
		ReservedBefore: before.Reserved,
		ReservedAfter:  after.Reserved,
		ReferenceType:  ref.Type,
		ReferenceID:    ref.ID,
		Notes:          ref.Notes,
		CreatedAt:      now,
	}
	if err := t.tx.LogMovement(ctx, movement); err != nil {
		return before, err
	}

	t.changes = append(t.changes, model.StockChange{
		Availability: after.Snapshot(),
		MovementType: movementType,
		ReferenceID:  ref.ID,
		OccurredAt:   now,
	})
	return after, nil
}
