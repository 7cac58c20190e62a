package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"gardiens/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permReadCalendar  = "read:calendar"
	permReadBookings  = "read:bookings"
	permWriteBookings = "write:bookings"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

// authenticator checks API key pairs against the configured clients. It is
// shared by the HTTP middleware and the gRPC interceptor.
type authenticator struct {
	cfg             *config.APIConfig
	clientsByAPIKey map[string]config.APIClientKey
	limiter         *rateLimiter
}

func newAuthenticator(cfg *config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &authenticator{cfg: cfg, clientsByAPIKey: m, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *authenticator) headers() (string, string) {
	apiKeyHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}
	return apiKeyHeader, extraHeader
}

func (a *authenticator) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := a.clientsByAPIKey[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// authorize checks one permission. An empty permission list allows all.
func authorize(client config.APIClientKey, required string) error {
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

type AuthInterceptor struct {
	*authenticator
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{authenticator: newAuthenticator(cfg)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.cfg.Enabled {
			return handler(ctx, req)
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(ctx, info.FullMethod); err != nil {
				return nil, err
			}
		}
		if !a.limiter.allow(a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}

		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKeyHeader, extraHeader := a.headers()
	client, err := a.authenticate(first(md.Get(apiKeyHeader)), first(md.Get(extraHeader)))
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}

	if err := authorize(client, requiredPermission(fullMethod)); err != nil {
		return status.Error(codes.PermissionDenied, err.Error())
	}
	return nil
}

// requiredPermission maps gRPC methods to permissions. Health probes only
// need a valid key.
func requiredPermission(fullMethod string) string {
	if strings.HasPrefix(fullMethod, "/grpc.reflection.") {
		return permReadCalendar
	}
	return ""
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	apiKeyHeader, _ := a.headers()
	if apiKey := first(md.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		base.Info().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

const requestIDHeader = "x-request-id"

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if id := first(md.Get(requestIDHeader)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
