package handler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/auth"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
)

type InventoryHandler struct {
	uc         inventory.UseCase
	defaultTTL time.Duration
	logger     logger.ZapLogger
}

// NewInventoryHandler serves the use case over gRPC. defaultTTL applies to
// holds whose request leaves the TTL out.
func NewInventoryHandler(uc inventory.UseCase, defaultTTL time.Duration, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:         uc,
		defaultTTL: defaultTTL,
		logger:     log,
	}
}

var _ InventoryServer = (*InventoryHandler)(nil)

func (h *InventoryHandler) HoldStock(ctx context.Context, req *HoldStockRequest) (*model.Reservation, error) {
	ttl := h.defaultTTL
	if req.TTLSeconds != nil {
		if *req.TTLSeconds < 0 {
			return nil, h.toStatus(ctx, errInput("ttl_seconds must not be negative"))
		}
		d, err := ttlDuration(*req.TTLSeconds)
		if err != nil {
			return nil, h.toStatus(ctx, err)
		}
		ttl = d
	}

	res, err := h.uc.HoldStock(ctx, &dto.HoldStockInput{
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		HolderRef: req.HolderRef,
		TTL:       ttl,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return res, nil
}

func (h *InventoryHandler) ExtendHold(ctx context.Context, req *ExtendHoldRequest) (*model.Reservation, error) {
	ttl, err := ttlDuration(req.TTLSeconds)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	res, err := h.uc.ExtendHold(ctx, req.ReservationID, ttl)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return res, nil
}

func (h *InventoryHandler) PinHold(ctx context.Context, req *ReservationRequest) (*model.Reservation, error) {
	res, err := h.uc.PinHold(ctx, req.ReservationID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return res, nil
}

func (h *InventoryHandler) ReleaseHold(ctx context.Context, req *ReservationRequest) (*Empty, error) {
	if err := h.uc.ReleaseHold(ctx, req.ReservationID); err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (h *InventoryHandler) ReleaseHolder(ctx context.Context, req *ReleaseHolderRequest) (*ReleaseHolderResponse, error) {
	n, err := h.uc.ReleaseHolder(ctx, req.HolderRef)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &ReleaseHolderResponse{Released: n}, nil
}

func (h *InventoryHandler) CommitHold(ctx context.Context, req *ReservationRequest) (*CommitHoldResponse, error) {
	out, err := h.uc.CommitHold(ctx, req.ReservationID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &CommitHoldResponse{
		Reservation: out.Reservation,
		Allocations: out.Allocations,
		TotalCost:   out.TotalCost,
	}, nil
}

func (h *InventoryHandler) GetHold(ctx context.Context, req *ReservationRequest) (*model.Reservation, error) {
	res, err := h.uc.GetHold(ctx, req.ReservationID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return res, nil
}

func (h *InventoryHandler) ListHolds(ctx context.Context, req *ListHoldsRequest) (*ListHoldsResponse, error) {
	holds, err := h.uc.ListHolds(ctx, req.HolderRef)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &ListHoldsResponse{Reservations: holds}, nil
}

func (h *InventoryHandler) CreatePurchaseOrder(ctx context.Context, req *CreatePurchaseOrderRequest) (*model.PurchaseOrder, error) {
	input := &dto.CreatePurchaseOrderInput{SupplierRef: req.SupplierRef}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, dto.PurchaseOrderLineInput{
			VariantID:       l.VariantID,
			QuantityOrdered: l.QuantityOrdered,
			UnitCost:        l.UnitCost,
		})
	}

	po, err := h.uc.CreatePurchaseOrder(ctx, input)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return po, nil
}

func (h *InventoryHandler) SubmitPurchaseOrder(ctx context.Context, req *PurchaseOrderRequest) (*model.PurchaseOrder, error) {
	po, err := h.uc.SubmitPurchaseOrder(ctx, req.PurchaseOrderID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return po, nil
}

func (h *InventoryHandler) ReceivePurchaseOrder(ctx context.Context, req *ReceivePurchaseOrderRequest) (*model.PurchaseOrder, error) {
	lines := make([]dto.ReceiveLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = dto.ReceiveLine{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitCost:  l.UnitCost,
		}
	}

	po, err := h.uc.ReceivePurchaseOrder(ctx, req.PurchaseOrderID, lines)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return po, nil
}

func (h *InventoryHandler) ClosePurchaseOrder(ctx context.Context, req *PurchaseOrderRequest) (*model.PurchaseOrder, error) {
	po, err := h.uc.ClosePurchaseOrder(ctx, req.PurchaseOrderID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return po, nil
}

func (h *InventoryHandler) GetPurchaseOrder(ctx context.Context, req *PurchaseOrderRequest) (*model.PurchaseOrder, error) {
	po, err := h.uc.GetPurchaseOrder(ctx, req.PurchaseOrderID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return po, nil
}

func (h *InventoryHandler) GetAvailability(ctx context.Context, req *VariantRequest) (*model.Availability, error) {
	av, err := h.uc.GetAvailability(ctx, req.VariantID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &av, nil
}

func (h *InventoryHandler) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*model.Availability, error) {
	av, err := h.uc.AdjustStock(ctx, &dto.AdjustStockInput{
		VariantID: req.VariantID,
		Delta:     req.Delta,
		Reason:    req.Reason,
		Actor:     auth.Actor(ctx),
		UnitCost:  req.UnitCost,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &av, nil
}

func (h *InventoryHandler) ListBatches(ctx context.Context, req *VariantRequest) (*ListBatchesResponse, error) {
	batches, err := h.uc.ListBatches(ctx, req.VariantID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &ListBatchesResponse{Batches: batches}, nil
}

func (h *InventoryHandler) ReconcileStock(ctx context.Context, req *VariantRequest) (*model.StockReconciliation, error) {
	out, err := h.uc.ReconcileStock(ctx, req.VariantID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return out, nil
}

func (h *InventoryHandler) ListMovements(ctx context.Context, req *ListMovementsRequest) (*ListMovementsResponse, error) {
	filters := &dto.MovementFilters{
		VariantID:    req.VariantID,
		MovementType: req.MovementType,
		ReferenceID:  req.ReferenceID,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}

	mvs, count, err := h.uc.ListMovements(ctx, filters)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &ListMovementsResponse{Movements: mvs, Total: count}, nil
}

func (h *InventoryHandler) ExpandVariants(ctx context.Context, req *ExpandVariantsRequest) (*ExpandVariantsResponse, error) {
	combos, err := h.uc.ExpandVariants(ctx, req.Axes)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &ExpandVariantsResponse{Combinations: combos}, nil
}

func (h *InventoryHandler) BuildVariants(ctx context.Context, req *BuildVariantsRequest) (*BuildVariantsResponse, error) {
	variants, err := h.uc.BuildVariants(ctx, &dto.BuildVariantsInput{
		ProductID: req.ProductID,
		BaseSKU:   req.BaseSKU,
		Axes:      req.Axes,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &BuildVariantsResponse{Variants: variants}, nil
}

// maxTTLSeconds is the largest TTL a time.Duration can hold.
const maxTTLSeconds = int64(math.MaxInt64 / int64(time.Second))

func ttlDuration(seconds int64) (time.Duration, error) {
	if seconds > maxTTLSeconds {
		return 0, errInput(fmt.Sprintf("ttl_seconds must not exceed %d", maxTTLSeconds))
	}
	return time.Duration(seconds) * time.Second, nil
}
