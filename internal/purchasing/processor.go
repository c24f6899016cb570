package purchasing

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-stock-ledger/internal/costing"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/metrics"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor is the only path that creates batches and raises on-hand stock.
type Processor struct {
	ledger  *ledger.Ledger
	batches *costing.BatchStore
	metrics *metrics.Metrics
	logger  logger.ZapLogger
}

func NewProcessor(l *ledger.Ledger, batches *costing.BatchStore, m *metrics.Metrics, log logger.ZapLogger) *Processor {
	return &Processor{
		ledger:  l,
		batches: batches,
		metrics: m,
		logger:  log,
	}
}

func (p *Processor) Create(ctx context.Context, input *dto.CreatePurchaseOrderInput) (*model.PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return nil, fmt.Errorf("%w: purchase order needs at least one line", inventory.ErrInvalidInput)
	}

	now := p.ledger.Now()
	po := &model.PurchaseOrder{
		ID:          uuid.New().String(),
		SupplierRef: input.SupplierRef,
		State:       model.PurchaseOrderDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, l := range input.Lines {
		if l.VariantID == "" {
			return nil, fmt.Errorf("%w: line %d has no variant", inventory.ErrInvalidInput, i+1)
		}
		if l.QuantityOrdered <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive, got %d", inventory.ErrInvalidInput, i+1, l.QuantityOrdered)
		}
		if l.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: line %d unit cost must not be negative", inventory.ErrInvalidInput, i+1)
		}
		po.Lines = append(po.Lines, model.PurchaseOrderLine{
			PurchaseOrderID: po.ID,
			LineNo:          i + 1,
			VariantID:       l.VariantID,
			QuantityOrdered: l.QuantityOrdered,
			UnitCost:        l.UnitCost,
		})
	}

	err := p.ledger.Run(ctx, []string{inventory.PurchaseOrderKey(po.ID)}, func(tx *ledger.Tx) error {
		return tx.Records().SavePurchaseOrder(ctx, po)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("purchase order created", zap.String("purchase_order_id", po.ID), zap.Int("lines", len(po.Lines)))
	return po, nil
}

func (p *Processor) Submit(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	return p.transition(ctx, id, model.PurchaseOrderSubmitted)
}

// CloseShort closes the order, abandoning whatever is still outstanding.
func (p *Processor) CloseShort(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	return p.transition(ctx, id, model.PurchaseOrderClosed)
}

func (p *Processor) Get(ctx context.Context, id string) (*model.PurchaseOrder, error) {
	return p.ledger.Repository().GetPurchaseOrder(ctx, id)
}

// Receive books received lines against the order. Each line becomes one batch
// and raises on-hand by its quantity. The order and every touched variant are
// locked together, so a receipt lands completely or not at all.
func (p *Processor) Receive(ctx context.Context, id string, lines []dto.ReceiveLine) (*model.PurchaseOrder, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: purchase order id is required", inventory.ErrInvalidInput)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: nothing to receive", inventory.ErrInvalidInput)
	}

	keys := []string{inventory.PurchaseOrderKey(id)}
	for i, l := range lines {
		if l.VariantID == "" {
			return nil, fmt.Errorf("%w: received line %d has no variant", inventory.ErrInvalidInput, i+1)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: received line %d quantity must be positive, got %d", inventory.ErrInvalidInput, i+1, l.Quantity)
		}
		if l.UnitCost != nil && l.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: received line %d unit cost must not be negative", inventory.ErrInvalidInput, i+1)
		}
		keys = append(keys, inventory.VariantKey(l.VariantID))
	}

	var po *model.PurchaseOrder
	var units int64
	err := p.ledger.Run(ctx, keys, func(tx *ledger.Tx) error {
		var err error
		po, err = tx.Records().GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if !po.State.CanTransition(model.PurchaseOrderReceived) {
			return fmt.Errorf("%w: purchase order %s is %s", inventory.ErrInvalidState, id, po.State)
		}

		ref := ledger.Reference{Type: model.ReferencePurchaseOrder, ID: po.ID, Notes: po.SupplierRef}
		receivedAt := tx.Now()
		units = 0
		for i, l := range lines {
			if outstanding := po.OutstandingFor(l.VariantID); l.Quantity > outstanding {
				return fmt.Errorf("%w: received line %d: %d of variant %s exceeds the %d outstanding on purchase order %s",
					inventory.ErrInvalidInput, i+1, l.Quantity, l.VariantID, outstanding, id)
			}

			// Fill the order's lines for the variant in line order.
			need := l.Quantity
			for need > 0 {
				poLine := outstandingLine(po, l.VariantID)
				take := min(need, poLine.Outstanding())

				unitCost := poLine.UnitCost
				if l.UnitCost != nil {
					unitCost = *l.UnitCost
				}
				if _, err := p.batches.Add(ctx, tx, costing.NewBatch{
					VariantID:       l.VariantID,
					PurchaseOrderID: po.ID,
					LineNo:          poLine.LineNo,
					Quantity:        take,
					UnitCost:        unitCost,
					ReceivedAt:      receivedAt,
				}); err != nil {
					return err
				}
				poLine.QuantityReceived += take
				need -= take
			}
			if _, err := tx.Receive(ctx, l.VariantID, l.Quantity, ref); err != nil {
				return err
			}
			units += l.Quantity
		}

		po.State = model.PurchaseOrderReceived
		if po.FullyReceived() {
			po.State = model.PurchaseOrderClosed
		}
		po.UpdatedAt = tx.Now()
		return tx.Records().SavePurchaseOrder(ctx, po)
	})
	if err != nil {
		p.logger.Warn("purchase order receipt rejected", zap.String("purchase_order_id", id), zap.Error(err))
		return nil, err
	}

	p.metrics.UnitsReceived(units)
	p.logger.Info("purchase order received",
		zap.String("purchase_order_id", po.ID),
		zap.String("state", string(po.State)),
		zap.Int64("units", units),
	)
	return po, nil
}

func (p *Processor) transition(ctx context.Context, id string, next model.PurchaseOrderState) (*model.PurchaseOrder, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: purchase order id is required", inventory.ErrInvalidInput)
	}
	var po *model.PurchaseOrder
	err := p.ledger.Run(ctx, []string{inventory.PurchaseOrderKey(id)}, func(tx *ledger.Tx) error {
		var err error
		po, err = tx.Records().GetPurchaseOrder(ctx, id)
		if err != nil {
			return err
		}
		if !po.State.CanTransition(next) {
			return fmt.Errorf("%w: purchase order %s cannot go from %s to %s", inventory.ErrInvalidState, id, po.State, next)
		}
		po.State = next
		po.UpdatedAt = tx.Now()
		return tx.Records().SavePurchaseOrder(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("purchase order state changed", zap.String("purchase_order_id", id), zap.String("state", string(next)))
	return po, nil
}

// outstandingLine picks the first line for variantID with quantity left to receive.
func outstandingLine(po *model.PurchaseOrder, variantID string) *model.PurchaseOrderLine {
	for i := range po.Lines {
		if po.Lines[i].VariantID == variantID && po.Lines[i].Outstanding() > 0 {
			return &po.Lines[i]
		}
	}
	return nil
}
