package handler

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-ledger/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs every unary call and turns panics into Internal.
func LoggingInterceptor(log logger.ZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in grpc handler", zap.String("method", info.FullMethod), zap.Any("panic", r))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.String("code", code.String()),
				zap.Duration("duration", time.Since(start)),
			}
			switch code {
			case codes.OK:
				log.Debug("grpc request", fields...)
			case codes.Internal, codes.DataLoss, codes.Unknown:
				log.Error("grpc request failed", append(fields, zap.Error(err))...)
			default:
				log.Info("grpc request rejected", append(fields, zap.Error(err))...)
			}
		}()
		return handler(ctx, req)
	}
}
