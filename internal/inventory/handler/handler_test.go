package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/internal/costing"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-ledger/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-ledger/internal/ledger"
	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"github.com/fekuna/omnipos-stock-ledger/internal/purchasing"
	"github.com/fekuna/omnipos-stock-ledger/internal/reservation"
	"github.com/fekuna/omnipos-stock-ledger/internal/variant"
	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const defaultTTL = 15 * time.Minute

func newTestClient(t *testing.T) *grpc.ClientConn {
	t.Helper()
	log := logger.NewNop()
	repo := repository.NewMemoryRepository()
	l := ledger.New(repo, log)
	batches := costing.NewBatchStore(repo)
	uc := usecase.NewInventoryUseCase(
		l,
		reservation.NewManager(l, costing.NewAllocator(), nil, log),
		purchasing.NewProcessor(l, batches, nil, log),
		batches,
		variant.NewMatrix(0),
		log,
	)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log)))
	RegisterInventoryServiceServer(srv, NewInventoryHandler(uc, defaultTTL, log))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, req, resp any) error {
	return conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp)
}

func TestInventoryServiceEndToEnd(t *testing.T) {
	ctx := context.Background()
	conn := newTestClient(t)

	var po model.PurchaseOrder
	err := call(ctx, conn, "CreatePurchaseOrder", &CreatePurchaseOrderRequest{
		SupplierRef: "acme",
		Lines: []PurchaseOrderLineRequest{
			{VariantID: "V", QuantityOrdered: 4, UnitCost: decimal.NewFromInt(2)},
			{VariantID: "V", QuantityOrdered: 6, UnitCost: decimal.NewFromInt(3)},
		},
	}, &po)
	if err != nil {
		t.Fatalf("CreatePurchaseOrder failed: %v", err)
	}
	if err := call(ctx, conn, "SubmitPurchaseOrder", &PurchaseOrderRequest{PurchaseOrderID: po.ID}, &po); err != nil {
		t.Fatalf("SubmitPurchaseOrder failed: %v", err)
	}
	for _, qty := range []int64{4, 6} {
		err := call(ctx, conn, "ReceivePurchaseOrder", &ReceivePurchaseOrderRequest{
			PurchaseOrderID: po.ID,
			Lines:           []ReceiveLineRequest{{VariantID: "V", Quantity: qty}},
		}, &po)
		if err != nil {
			t.Fatalf("ReceivePurchaseOrder failed: %v", err)
		}
	}
	if po.State != model.PurchaseOrderClosed {
		t.Errorf("Expected closed purchase order, got %s", po.State)
	}

	var cartA model.Reservation
	if err := call(ctx, conn, "HoldStock", &HoldStockRequest{VariantID: "V", Quantity: 7, HolderRef: "cartA"}, &cartA); err != nil {
		t.Fatalf("HoldStock failed: %v", err)
	}
	if cartA.ExpiresAt == nil {
		t.Error("Expected default ttl to set an expiry")
	}

	var cartB model.Reservation
	err = call(ctx, conn, "HoldStock", &HoldStockRequest{VariantID: "V", Quantity: 5, HolderRef: "cartB"}, &cartB)
	if status.Code(err) != codes.FailedPrecondition || !strings.Contains(status.Convert(err).Message(), "only 3 left") {
		t.Fatalf("Expected FailedPrecondition with 3 left, got %v", err)
	}

	noTTL := int64(0)
	if err := call(ctx, conn, "HoldStock", &HoldStockRequest{VariantID: "V", Quantity: 3, HolderRef: "cartB", TTLSeconds: &noTTL}, &cartB); err != nil {
		t.Fatalf("HoldStock failed: %v", err)
	}
	if cartB.ExpiresAt != nil {
		t.Errorf("Expected zero ttl to mean no expiry, got %v", cartB.ExpiresAt)
	}

	var committed CommitHoldResponse
	if err := call(ctx, conn, "CommitHold", &ReservationRequest{ReservationID: cartA.ID}, &committed); err != nil {
		t.Fatalf("CommitHold failed: %v", err)
	}
	if !committed.TotalCost.Equal(decimal.NewFromInt(17)) || len(committed.Allocations) != 2 {
		t.Errorf("Expected 17 over 2 allocations, got %s over %d", committed.TotalCost, len(committed.Allocations))
	}

	err = call(ctx, conn, "CommitHold", &ReservationRequest{ReservationID: cartA.ID}, &committed)
	if status.Code(err) != codes.Aborted {
		t.Errorf("Expected Aborted on second commit, got %v", err)
	}

	var av model.Availability
	if err := call(ctx, conn, "GetAvailability", &VariantRequest{VariantID: "V"}, &av); err != nil {
		t.Fatalf("GetAvailability failed: %v", err)
	}
	if av.OnHand != 3 || av.Reserved != 3 || av.Available != 0 {
		t.Errorf("Expected on_hand=3 reserved=3 available=0, got %+v", av)
	}

	var released ReleaseHolderResponse
	if err := call(ctx, conn, "ReleaseHolder", &ReleaseHolderRequest{HolderRef: "cartB"}, &released); err != nil {
		t.Fatalf("ReleaseHolder failed: %v", err)
	}
	if released.Released != 1 {
		t.Errorf("Expected 1 released, got %d", released.Released)
	}

	var movements ListMovementsResponse
	if err := call(ctx, conn, "ListMovements", &ListMovementsRequest{VariantID: "V", MovementType: string(model.MovementCommit)}, &movements); err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	if movements.Total != 1 || movements.Movements[0].ReferenceID != cartA.ID {
		t.Errorf("Expected one commit movement for cartA, got %+v", movements)
	}
}

func TestExpandVariantsOverGRPC(t *testing.T) {
	ctx := context.Background()
	conn := newTestClient(t)

	var out ExpandVariantsResponse
	err := call(ctx, conn, "ExpandVariants", &ExpandVariantsRequest{Axes: []model.VariantOptionAxis{
		{Name: "Size", Options: []string{"S", "M"}},
		{Name: "Color", Options: []string{"Red", "Blue"}},
	}}, &out)
	if err != nil {
		t.Fatalf("ExpandVariants failed: %v", err)
	}
	if len(out.Combinations) != 4 || out.Combinations[1][1].Option != "Blue" {
		t.Errorf("Unexpected combinations: %+v", out.Combinations)
	}

	err = call(ctx, conn, "ExpandVariants", &ExpandVariantsRequest{Axes: []model.VariantOptionAxis{{Name: "Size"}}}, &out)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}
}

func TestHoldTTLBounds(t *testing.T) {
	ctx := context.Background()
	conn := newTestClient(t)

	tests := []struct {
		name   string
		method string
		req    any
	}{
		{"negative hold ttl", "HoldStock", &HoldStockRequest{VariantID: "V", Quantity: 1, HolderRef: "c", TTLSeconds: ptr(int64(-5))}},
		{"overflowing hold ttl", "HoldStock", &HoldStockRequest{VariantID: "V", Quantity: 1, HolderRef: "c", TTLSeconds: ptr(maxTTLSeconds + 1)}},
		{"overflowing extension", "ExtendHold", &ExtendHoldRequest{ReservationID: "r", TTLSeconds: math.MaxInt64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res model.Reservation
			err := call(ctx, conn, tt.method, tt.req, &res)
			if status.Code(err) != codes.InvalidArgument {
				t.Errorf("Expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestHoldsAndReconcileOverGRPC(t *testing.T) {
	ctx := context.Background()
	conn := newTestClient(t)

	cost := decimal.NewFromInt(1)
	var av model.Availability
	if err := call(ctx, conn, "AdjustStock", &AdjustStockRequest{VariantID: "V", Delta: 4, Reason: "opening count", UnitCost: &cost}, &av); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	var res model.Reservation
	if err := call(ctx, conn, "HoldStock", &HoldStockRequest{VariantID: "V", Quantity: 2, HolderRef: "cart"}, &res); err != nil {
		t.Fatalf("HoldStock failed: %v", err)
	}

	var holds ListHoldsResponse
	if err := call(ctx, conn, "ListHolds", &ListHoldsRequest{HolderRef: "cart"}, &holds); err != nil {
		t.Fatalf("ListHolds failed: %v", err)
	}
	if len(holds.Reservations) != 1 || holds.Reservations[0].ID != res.ID {
		t.Errorf("Expected the cart's hold, got %+v", holds.Reservations)
	}

	if err := call(ctx, conn, "AdjustStock", &AdjustStockRequest{VariantID: "V", Delta: -1, Reason: "damaged"}, &av); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	var rec model.StockReconciliation
	if err := call(ctx, conn, "ReconcileStock", &VariantRequest{VariantID: "V"}, &rec); err != nil {
		t.Fatalf("ReconcileStock failed: %v", err)
	}
	if !rec.Balanced || rec.OnHand != 3 || rec.BatchRemaining != 3 {
		t.Errorf("Expected 3 on hand and in batches, got %+v", rec)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestToStatus(t *testing.T) {
	h := &InventoryHandler{logger: logger.NewNop()}

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"out of stock", &inventory.OutOfStockError{VariantID: "V", Requested: 2, Available: 1}, codes.FailedPrecondition},
		{"wrapped out of stock", fmt.Errorf("hold: %w", inventory.ErrOutOfStock), codes.FailedPrecondition},
		{"invalid state", fmt.Errorf("%w: closed", inventory.ErrInvalidState), codes.Aborted},
		{"insufficient batches", inventory.ErrInsufficientBatches, codes.DataLoss},
		{"invalid input", inventory.ErrInvalidInput, codes.InvalidArgument},
		{"too many combinations", inventory.ErrTooManyCombinations, codes.InvalidArgument},
		{"not found", fmt.Errorf("reservation x: %w", inventory.ErrNotFound), codes.NotFound},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"canceled", context.Canceled, codes.Canceled},
		{"unknown", errors.New("disk on fire"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(h.toStatus(context.Background(), tt.err)); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestLoggingInterceptorRecoversPanic(t *testing.T) {
	interceptor := LoggingInterceptor(logger.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/" + ServiceName + "/HoldStock"}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if resp != nil || status.Code(err) != codes.Internal {
		t.Errorf("Expected Internal without response, got resp=%v err=%v", resp, err)
	}
}

func TestAdjustStockRecordsCaller(t *testing.T) {
	conn := newTestClient(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-user-id", "u-7")

	cost := decimal.NewFromInt(2)
	var av model.Availability
	if err := call(ctx, conn, "AdjustStock", &AdjustStockRequest{VariantID: "V", Delta: 5, Reason: "cycle count", UnitCost: &cost}, &av); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if av.OnHand != 5 {
		t.Errorf("Expected on hand 5, got %d", av.OnHand)
	}

	var movements ListMovementsResponse
	if err := call(ctx, conn, "ListMovements", &ListMovementsRequest{VariantID: "V"}, &movements); err != nil {
		t.Fatalf("ListMovements failed: %v", err)
	}
	if movements.Total != 1 || movements.Movements[0].Notes != "cycle count (by u-7)" {
		t.Errorf("Expected attributed adjustment, got %+v", movements.Movements)
	}
}
