package ledger

import (
	"fmt"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

// The functions below are the whole arithmetic of the ledger. Each returns the
// new record or an error, never a partially updated record.

func receive(rec model.StockRecord, qty int64) (model.StockRecord, error) {
	rec.OnHand += qty
	return rec, checkInvariant(rec)
}

func reserve(rec model.StockRecord, qty int64) (model.StockRecord, error) {
	if rec.Available() < qty {
		return rec, &inventory.OutOfStockError{
			VariantID: rec.VariantID,
			Requested: qty,
			Available: rec.Available(),
		}
	}
	rec.Reserved += qty
	return rec, checkInvariant(rec)
}

func release(rec model.StockRecord, qty int64) (model.StockRecord, error) {
	if rec.Reserved < qty {
		return rec, fmt.Errorf("%w: release %d of variant %s with only %d reserved",
			inventory.ErrInvalidState, qty, rec.VariantID, rec.Reserved)
	}
	rec.Reserved -= qty
	return rec, checkInvariant(rec)
}

func commit(rec model.StockRecord, qty int64) (model.StockRecord, error) {
	if rec.Reserved < qty || rec.OnHand < qty {
		return rec, fmt.Errorf("%w: commit %d of variant %s with on_hand=%d reserved=%d",
			inventory.ErrInvalidState, qty, rec.VariantID, rec.OnHand, rec.Reserved)
	}
	rec.OnHand -= qty
	rec.Reserved -= qty
	return rec, checkInvariant(rec)
}

func adjust(rec model.StockRecord, delta int64) (model.StockRecord, error) {
	if rec.OnHand+delta < rec.Reserved {
		return rec, &inventory.OutOfStockError{
			VariantID: rec.VariantID,
			Requested: -delta,
			Available: rec.Available(),
		}
	}
	rec.OnHand += delta
	return rec, checkInvariant(rec)
}

// checkInvariant enforces 0 <= reserved <= onHand.
func checkInvariant(rec model.StockRecord) error {
	if rec.Reserved < 0 || rec.OnHand < 0 || rec.Reserved > rec.OnHand {
		return fmt.Errorf("%w: invariant violated for variant %s: on_hand=%d reserved=%d",
			inventory.ErrInvalidState, rec.VariantID, rec.OnHand, rec.Reserved)
	}
	return nil
}
