package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthMethodPrefix = "/grpc.health.v1.Health/"

// streamPath is the SSE endpoint. Browser EventSource clients cannot set
// headers, so it also accepts the token as ?access_token=.
const streamPath = "/v1/events/stream"

// splitMethod turns "/pkg.Service/Method" into its service and method parts.
func splitMethod(fullMethod string) (service, method string) {
	s := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// LoggingInterceptor logs service, method, status code and duration for
// every unary RPC. Failed calls log at error level, the rest at debug.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		service, method := splitMethod(info.FullMethod)
		attrs := []any{
			"service", service,
			"method", method,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.Error("rpc failed", append(attrs, "err", err)...)
		} else {
			logger.Debug("rpc completed", attrs...)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal and logs the
// stack, keeping the daemon and its presence loop alive.
func RecoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered in gRPC handler",
					"method", info.FullMethod,
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// checkBearer validates an Authorization value against token. The returned
// message is safe to send to the client.
func checkBearer(header, token string) (string, bool) {
	if header == "" {
		return "missing authorization header", false
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "invalid authorization scheme", false
	}
	if !tokenMatches(provided, token) {
		return "invalid token", false
	}
	return "", true
}

func tokenMatches(provided, token string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}

// AuthInterceptor returns a gRPC unary interceptor requiring
// "authorization: Bearer <token>" metadata. An empty token disables auth.
// The health service is always exempt so orchestrators can check liveness.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" || strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		if msg, ok := checkBearer(header, token); !ok {
			return nil, status.Error(codes.Unauthenticated, msg)
		}
		return handler(ctx, req)
	}
}

// AuthMiddleware guards the HTTP API with the same bearer token. An empty
// token disables auth. GET /v1/health is exempt, and the event stream also
// accepts ?access_token= for EventSource clients.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" && r.Method == http.MethodGet && r.URL.Path == streamPath {
			if qt := r.URL.Query().Get("access_token"); qt != "" {
				if !tokenMatches(qt, token) {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
		}

		if msg, ok := checkBearer(auth, token); !ok {
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}
