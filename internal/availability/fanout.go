package availability

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
)

// Fanout delivers each batch of changes to every notifier, even when an
// earlier one fails.
type Fanout []ledger.Notifier

func (f Fanout) StockChanged(ctx context.Context, changes []model.StockChange) error {
	var errs []error
	for _, n := range f {
		if err := n.StockChanged(ctx, changes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
