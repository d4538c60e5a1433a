package server

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// StreamLoggingInterceptor logs the lifetime of every stream.
func StreamLoggingInterceptor(log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		address := "unknown"
		if p, ok := peer.FromContext(ss.Context()); ok {
			address = p.Addr.String()
		}
		log.Debug("Stream opened", "method", info.FullMethod, "peer", address)

		err := handler(srv, ss)

		code := status.Code(err)
		level := slog.LevelInfo
		if code != codes.OK && code != codes.Canceled {
			level = slog.LevelWarn
		}
		log.Log(ss.Context(), level, "Stream closed",
			"method", info.FullMethod,
			"peer", address,
			"code", code.String(),
			"duration", time.Since(start))
		return err
	}
}
