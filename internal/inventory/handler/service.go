package handler

import (
	"context"

	"github.com/fekuna/omnipos-stock-ledger/internal/model"
	"google.golang.org/grpc"
)

const ServiceName = "stockledger.v1.InventoryService"

// InventoryServer is the server API of stockledger.v1.InventoryService.
type InventoryServer interface {
	HoldStock(context.Context, *HoldStockRequest) (*model.Reservation, error)
	ExtendHold(context.Context, *ExtendHoldRequest) (*model.Reservation, error)
	PinHold(context.Context, *ReservationRequest) (*model.Reservation, error)
	ReleaseHold(context.Context, *ReservationRequest) (*Empty, error)
	ReleaseHolder(context.Context, *ReleaseHolderRequest) (*ReleaseHolderResponse, error)
	CommitHold(context.Context, *ReservationRequest) (*CommitHoldResponse, error)
	GetHold(context.Context, *ReservationRequest) (*model.Reservation, error)
	ListHolds(context.Context, *ListHoldsRequest) (*ListHoldsResponse, error)

	CreatePurchaseOrder(context.Context, *CreatePurchaseOrderRequest) (*model.PurchaseOrder, error)
	SubmitPurchaseOrder(context.Context, *PurchaseOrderRequest) (*model.PurchaseOrder, error)
	ReceivePurchaseOrder(context.Context, *ReceivePurchaseOrderRequest) (*model.PurchaseOrder, error)
	ClosePurchaseOrder(context.Context, *PurchaseOrderRequest) (*model.PurchaseOrder, error)
	GetPurchaseOrder(context.Context, *PurchaseOrderRequest) (*model.PurchaseOrder, error)

	GetAvailability(context.Context, *VariantRequest) (*model.Availability, error)
	AdjustStock(context.Context, *AdjustStockRequest) (*model.Availability, error)
	ListBatches(context.Context, *VariantRequest) (*ListBatchesResponse, error)
	ListMovements(context.Context, *ListMovementsRequest) (*ListMovementsResponse, error)
	ReconcileStock(context.Context, *VariantRequest) (*model.StockReconciliation, error)

	ExpandVariants(context.Context, *ExpandVariantsRequest) (*ExpandVariantsResponse, error)
	BuildVariants(context.Context, *BuildVariantsRequest) (*BuildVariantsResponse, error)
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&InventoryServiceDesc, srv)
}

var InventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("HoldStock", InventoryServer.HoldStock),
		unary("ExtendHold", InventoryServer.ExtendHold),
		unary("PinHold", InventoryServer.PinHold),
		unary("ReleaseHold", InventoryServer.ReleaseHold),
		unary("ReleaseHolder", InventoryServer.ReleaseHolder),
		unary("CommitHold", InventoryServer.CommitHold),
		unary("GetHold", InventoryServer.GetHold),
		unary("ListHolds", InventoryServer.ListHolds),
		unary("CreatePurchaseOrder", InventoryServer.CreatePurchaseOrder),
		unary("SubmitPurchaseOrder", InventoryServer.SubmitPurchaseOrder),
		unary("ReceivePurchaseOrder", InventoryServer.ReceivePurchaseOrder),
		unary("ClosePurchaseOrder", InventoryServer.ClosePurchaseOrder),
		unary("GetPurchaseOrder", InventoryServer.GetPurchaseOrder),
		unary("GetAvailability", InventoryServer.GetAvailability),
		unary("AdjustStock", InventoryServer.AdjustStock),
		unary("ListBatches", InventoryServer.ListBatches),
		unary("ListMovements", InventoryServer.ListMovements),
		unary("ReconcileStock", InventoryServer.ReconcileStock),
		unary("ExpandVariants", InventoryServer.ExpandVariants),
		unary("BuildVariants", InventoryServer.BuildVariants),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockledger/v1/inventory.json",
}

// unary adapts a typed server method to grpc's untyped method handler.
func unary[Req, Resp any](name string, call func(InventoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InventoryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(InventoryServer), ctx, req.(*Req))
			})
		},
	}
}
