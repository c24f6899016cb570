package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func errInput(msg string) error {
	return fmt.Errorf("%w: %s", inventory.ErrInvalidInput, msg)
}

// toStatus maps domain errors onto gRPC codes. Conflicts use Aborted, the
// gRPC counterpart of HTTP 409.
func (h *InventoryHandler) toStatus(ctx context.Context, err error) error {
	var oos *inventory.OutOfStockError
	switch {
	case errors.As(err, &oos):
		return status.Errorf(codes.FailedPrecondition, "item unavailable: only %d left", oos.Available)
	case errors.Is(err, inventory.ErrOutOfStock):
		return status.Error(codes.FailedPrecondition, "item unavailable")
	case errors.Is(err, inventory.ErrInvalidState):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, inventory.ErrInsufficientBatches):
		h.logger.Error("batch ledger divergence", zap.Error(err))
		return status.Error(codes.DataLoss, "stock cost records need reconciliation")
	case errors.Is(err, inventory.ErrInvalidInput), errors.Is(err, inventory.ErrTooManyCombinations):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, inventory.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		h.logger.Error("unexpected inventory error", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
