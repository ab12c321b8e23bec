package services

import (
	stdcontext "context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostwriter-labs/gate_api/shared"
)

func newRateLimitService(cache *fakeCache) *RateLimitService {
	svc := &RateLimitService{cache: cache}
	svc.initDefaultConfigs()
	return svc
}

func TestIsAllowedWithinWindow(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	for i := 0; i < 20; i++ {
		allowed, info, err := svc.IsAllowed("token:abc", "generate")
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 19-i, info.Remaining)
	}
}

func TestIsAllowedOverLimit(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	for i := 0; i < 20; i++ {
		allowed, _, err := svc.IsAllowed("token:abc", "generate")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, info, err := svc.IsAllowed("token:abc", "generate")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.Positive(t, info.RetryAfter)
	assert.NotNil(t, info.ResetTime)
}

func TestFirstHitArmsWindowTTL(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	_, _, err := svc.IsAllowed("ip:10.0.0.1", "token_issue")
	require.NoError(t, err)

	ttl, err := cache.TTL(stdcontext.Background(), shared.KeyRateLimit+"ip:10.0.0.1:token_issue")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, ttl)
}

func TestIdentitiesHaveSeparateWindows(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	for i := 0; i < 5; i++ {
		_, _, err := svc.IsAllowed("ip:10.0.0.1", "token_issue")
		require.NoError(t, err)
	}

	allowed, _, err := svc.IsAllowed("ip:10.0.0.1", "token_issue")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = svc.IsAllowed("ip:10.0.0.2", "token_issue")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEndpointTypesHaveSeparateWindows(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	for i := 0; i < 5; i++ {
		_, _, err := svc.IsAllowed("token:abc", "token_issue")
		require.NoError(t, err)
	}

	allowed, _, err := svc.IsAllowed("token:abc", "token_issue")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, _, err = svc.IsAllowed("token:abc", "generate")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestIsAllowedFailsOpenOnCacheError(t *testing.T) {
	cache := newFakeCache()
	cache.incrErr = errors.New("connection refused")
	svc := newRateLimitService(cache)

	allowed, info, err := svc.IsAllowed("token:abc", "generate")
	assert.True(t, allowed)
	assert.Error(t, err)
	assert.Equal(t, -1, info.Remaining)
}

func TestUnknownEndpointTypeIsUnlimited(t *testing.T) {
	svc := newRateLimitService(newFakeCache())

	allowed, info, err := svc.IsAllowed("token:abc", "no_such_type")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, -1, info.Remaining)
}

func TestInactiveConfigIsUnlimited(t *testing.T) {
	svc := newRateLimitService(newFakeCache())
	svc.SetConfig(RateLimitConfig{
		EndpointType: "generate",
		MaxRequests:  1,
		WindowSize:   time.Minute,
		IsActive:     false,
	})

	for i := 0; i < 10; i++ {
		allowed, _, err := svc.IsAllowed("token:abc", "generate")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestResetRateLimitClearsWindow(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	for i := 0; i < 6; i++ {
		_, _, err := svc.IsAllowed("ip:10.0.0.1", "token_issue")
		require.NoError(t, err)
	}

	allowed, _, err := svc.IsAllowed("ip:10.0.0.1", "token_issue")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, svc.ResetRateLimit("ip:10.0.0.1", "token_issue"))

	allowed, _, err = svc.IsAllowed("ip:10.0.0.1", "token_issue")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestActiveWindowsFiltersByIdentity(t *testing.T) {
	cache := newFakeCache()
	svc := newRateLimitService(cache)

	_, _, err := svc.IsAllowed("token:abc", "generate")
	require.NoError(t, err)
	_, _, err = svc.IsAllowed("ip:10.0.0.1", "api_general")
	require.NoError(t, err)

	all, err := svc.ActiveWindows("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := svc.ActiveWindows("token:abc")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Contains(t, one, "token:abc:generate")
}

func TestDefaultConfigs(t *testing.T) {
	svc := newRateLimitService(newFakeCache())
	assert.Equal(t, RATE_LIMIT_SVC, svc.Id())

	generate, ok := svc.GetConfig("generate")
	require.True(t, ok)
	assert.Equal(t, int64(20), generate.MaxRequests)
	assert.Equal(t, time.Minute, generate.WindowSize)

	issue, ok := svc.GetConfig("token_issue")
	require.True(t, ok)
	assert.Equal(t, int64(5), issue.MaxRequests)
	assert.Equal(t, 15*time.Minute, issue.WindowSize)

	_, ok = svc.GetConfig("unknown")
	assert.False(t, ok)
}
