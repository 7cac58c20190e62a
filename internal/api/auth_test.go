package api

import (
	"context"
	"testing"

	"gardiens/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func authConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: " X-Partner-Key ",
			APIKeys: []config.APIClientKey{
				{Key: "widget", Extra: "w", Permissions: []string{permReadCalendar}},
				{Key: "admin", Extra: "a"},
			},
		},
	}
}

func TestAuthenticatorHeaders(t *testing.T) {
	apiKey, extra := newAuthenticator(authConfig()).headers()
	assert.Equal(t, "x-partner-key", apiKey)
	assert.Equal(t, apiExtraHeaderDefault, extra)
}

func TestAuthenticate(t *testing.T) {
	a := newAuthenticator(authConfig())

	_, err := a.authenticate("", "w")
	assert.ErrorIs(t, err, errMissingCredentials)

	_, err = a.authenticate("other", "w")
	assert.ErrorIs(t, err, errInvalidAPIKey)

	_, err = a.authenticate("widget", "a")
	assert.ErrorIs(t, err, errInvalidExtra)

	client, err := a.authenticate("widget", "w")
	require.NoError(t, err)
	assert.Equal(t, "widget", client.Key)
}

func TestAuthorize(t *testing.T) {
	widget := config.APIClientKey{Permissions: []string{" read:calendar "}}

	assert.NoError(t, authorize(widget, ""))
	assert.NoError(t, authorize(widget, permReadCalendar))
	assert.ErrorIs(t, authorize(widget, permWriteBookings), errPermissionDenied)
	assert.NoError(t, authorize(config.APIClientKey{}, permWriteBookings))
}

func TestRoutePermissionsCoverAPI(t *testing.T) {
	for _, route := range []string{
		routeService, routeCalendar, routeCollective, routeExport, routeQuote,
		routeBookingNew, routeBookingGet, routeBookingStop,
		routeDraftNew, routeDraftGet, routeDraftPut, routeDraftDelete,
	} {
		assert.NotEmpty(t, routePermissions[route], route)
	}
	assert.Empty(t, routePermissions[routeHealthz])
}

func TestRateLimiter(t *testing.T) {
	disabled := newRateLimiter(config.APIRateLimitConfig{})
	for i := 0; i < 10; i++ {
		assert.True(t, disabled.allow("k"))
	}

	l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001, Burst: 2})
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "buckets are per key")

	var nilLimiter *rateLimiter
	assert.True(t, nilLimiter.allow("a"))
}

func TestAuthInterceptorUnary(t *testing.T) {
	interceptor := NewAuthInterceptor(authConfig()).Unary()
	handler := func(context.Context, any) (any, error) { return "ok", nil }
	call := func(ctx context.Context, method string) error {
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
		return err
	}
	health := "/grpc.health.v1.Health/Check"
	reflect := "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"

	assert.Equal(t, codes.Unauthenticated, status.Code(call(context.Background(), health)))

	widget := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-partner-key", "widget", "x-api-extra", "w"))
	assert.NoError(t, call(widget, health))
	assert.NoError(t, call(widget, reflect))

	cfg := authConfig()
	cfg.Auth.APIKeys[0].Permissions = []string{permReadBookings}
	limited := NewAuthInterceptor(cfg).Unary()
	_, err := limited(widget, nil, &grpc.UnaryServerInfo{FullMethod: reflect}, handler)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestAuthInterceptorDisabledAPI(t *testing.T) {
	cfg := authConfig()
	cfg.Enabled = false
	interceptor := NewAuthInterceptor(cfg).Unary()

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRequestIDFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, "req-1"))
	assert.Equal(t, "req-1", requestIDFromMetadata(ctx))
	assert.NotEmpty(t, requestIDFromMetadata(context.Background()))
}
