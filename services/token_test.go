package services

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

func newTokenService(store *fakeTokenStore) *TokenService {
	return &TokenService{store: store}
}

func TestIssueFreeToken(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	resp, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree, OwnerID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, model.TierFree, resp.Tier)
	assert.Nil(t, resp.ExpiresAt)
	assert.Equal(t, int64(30_000), resp.Gigachat.Limit)
	assert.Equal(t, int64(30_000), resp.OpenAI.Limit)
	assert.Equal(t, int64(30_000), resp.Gigachat.Remaining)

	stored, err := store.GetToken(resp.Token)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Equal(t, OwnerFingerprint("user-1"), stored.OwnerFingerprint)
}

func TestIssueFreeTokenDeduplicated(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	_, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree, OwnerID: "user-1"})
	require.NoError(t, err)

	_, err = svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree, OwnerID: "user-1"})
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindDuplicateFreeGrant, appErr.Kind)
	assert.Equal(t, 409, appErr.StatusCode)

	// A different owner is unaffected.
	_, err = svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree, OwnerID: "user-2"})
	assert.NoError(t, err)
}

func TestIssueAnonymousFreeTokensNotDeduplicated(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	_, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree})
	require.NoError(t, err)
	_, err = svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree})
	assert.NoError(t, err)
}

func TestIssueSubscriptionRetiresFreeGrant(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	free, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree, OwnerID: "user-1"})
	require.NoError(t, err)

	paid, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierBasic, OwnerID: "user-1"})
	require.NoError(t, err)
	require.NotNil(t, paid.ExpiresAt)
	assert.Equal(t, int64(200_000), paid.Gigachat.Limit)

	retired, err := store.GetToken(free.Token)
	require.NoError(t, err)
	assert.False(t, retired.IsActive)

	minted, err := store.GetToken(paid.Token)
	require.NoError(t, err)
	assert.NotNil(t, minted.SubscriptionStart)
	assert.NotNil(t, minted.NextRenewal)
}

func TestIssueSameTierExtendsSubscription(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	first, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierPro, OwnerID: "user-1"})
	require.NoError(t, err)
	firstExpiry := *first.ExpiresAt

	second, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierPro, OwnerID: "user-1"})
	require.NoError(t, err)

	// Same credential, pushed forward one period past the old expiry.
	assert.Equal(t, first.Token, second.Token)
	require.NotNil(t, second.ExpiresAt)
	assert.Equal(t, firstExpiry.AddDate(0, 0, 30), *second.ExpiresAt)

	_, total, err := store.ListTokens(model.TierPro, nil, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestIssueDifferentTierMintsNewToken(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	basic, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierBasic, OwnerID: "user-1"})
	require.NoError(t, err)

	pro, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierPro, OwnerID: "user-1"})
	require.NoError(t, err)

	assert.NotEqual(t, basic.Token, pro.Token)
}

func TestIssueUnknownTier(t *testing.T) {
	svc := newTokenService(newFakeTokenStore())

	_, err := svc.Issue(dto.IssueTokenRequest{Tier: "PLATINUM"})
	require.Error(t, err)

	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindBadRequest, appErr.Kind)
}

func TestLookupRequiresToken(t *testing.T) {
	svc := newTokenService(newFakeTokenStore())

	_, err := svc.Lookup("")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindUnauthorized, appErr.Kind)
}

func TestLookupUnknownToken(t *testing.T) {
	svc := newTokenService(newFakeTokenStore())

	_, err := svc.Lookup("nope")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindNotFound, appErr.Kind)
}

func TestLookupStoreOutage(t *testing.T) {
	store := newFakeTokenStore()
	store.getErr = fmt.Errorf("DATABASE_CONNECTION_ERROR: %w", errors.New("connection refused"))
	svc := newTokenService(store)

	// An unreachable store is a 503, never an invalid credential.
	_, err := svc.Lookup("tok-any")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindSubstrateUnavailable, appErr.Kind)
	assert.Equal(t, 503, appErr.StatusCode)

	_, err = svc.Info("tok-any")
	appErr, ok = shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindSubstrateUnavailable, appErr.Kind)
}

func TestLookupLazilyDeactivatesExpiredToken(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	expired := time.Now().Add(-time.Hour)
	_, err := store.CreateToken(&model.AccessToken{
		ID:            "tok-expired",
		Tier:          model.TierBasic,
		GigachatLimit: 100,
		IsActive:      true,
		ExpiresAt:     &expired,
	})
	require.NoError(t, err)

	_, err = svc.Lookup("tok-expired")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindInactive, appErr.Kind)

	// The expiry was applied durably, not just for this read.
	stored, err := store.GetToken("tok-expired")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestCheckAndConsumeDebitsPool(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	issued, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree})
	require.NoError(t, err)

	token, err := svc.CheckAndConsume(issued.Token, shared.PoolGigachat, 1_000, "203.0.113.9")
	require.NoError(t, err)

	assert.Equal(t, int64(1_000), token.GigachatUsed)
	assert.Equal(t, int64(0), token.OpenAIUsed)
	assert.Equal(t, int64(29_000), token.PoolRemaining(shared.PoolGigachat))
	assert.Equal(t, int64(1_000), token.TotalUsed)
	assert.Equal(t, "203.0.113.9", token.LastKnownIP)
	assert.NotNil(t, token.LastUsedAt)
}

func TestCheckAndConsumeDisabledPoolShortCircuits(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	_, err := store.CreateToken(&model.AccessToken{
		ID:            "tok-hidden",
		Tier:          model.TierHiddenLong,
		GigachatLimit: model.LimitUnlimited,
		OpenAILimit:   model.LimitDisabled,
		IsActive:      true,
	})
	require.NoError(t, err)

	_, err = svc.CheckAndConsume("tok-hidden", shared.PoolOpenAI, 1, "")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindQuotaExceeded, appErr.Kind)
	assert.Equal(t, 402, appErr.StatusCode)

	// The disabled pool never touched the counters.
	stored, err := store.GetToken("tok-hidden")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.OpenAIUsed)
	assert.Equal(t, int64(0), stored.TotalUsed)
}

func TestCheckAndConsumeUnknownPoolRefused(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	issued, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree})
	require.NoError(t, err)

	_, err = svc.CheckAndConsume(issued.Token, "mistral", 1, "")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindQuotaExceeded, appErr.Kind)

	stored, err := store.GetToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TotalUsed)
}

func TestCheckAndConsumeQuotaExceeded(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	_, err := store.CreateToken(&model.AccessToken{
		ID:            "tok-small",
		Tier:          model.TierFree,
		GigachatLimit: 100,
		GigachatUsed:  90,
		OpenAILimit:   100,
		IsActive:      true,
	})
	require.NoError(t, err)

	// Over the remaining 10: denied, counters untouched.
	_, err = svc.CheckAndConsume("tok-small", shared.PoolGigachat, 11, "")
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindQuotaExceeded, appErr.Kind)

	data, ok := appErr.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, shared.PoolGigachat, data["pool"])
	assert.Equal(t, int64(10), data["remaining"])

	stored, err := store.GetToken("tok-small")
	require.NoError(t, err)
	assert.Equal(t, int64(90), stored.GigachatUsed)

	// Exactly the remaining 10 is fine.
	token, err := svc.CheckAndConsume("tok-small", shared.PoolGigachat, 10, "")
	require.NoError(t, err)
	assert.Equal(t, int64(100), token.GigachatUsed)
	assert.Equal(t, int64(0), token.PoolRemaining(shared.PoolGigachat))
}

func TestCheckAndConsumeConcurrentNeverOverspends(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	_, err := store.CreateToken(&model.AccessToken{
		ID:            "tok-race",
		Tier:          model.TierFree,
		GigachatLimit: 10,
		GigachatUsed:  9,
		OpenAILimit:   10,
		IsActive:      true,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var successes atomic.Int64
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CheckAndConsume("tok-race", shared.PoolGigachat, 1, ""); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes.Load())

	stored, err := store.GetToken("tok-race")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.GigachatUsed)
}

func TestCheckAndConsumeUnlimitedPool(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	_, err := store.CreateToken(&model.AccessToken{
		ID:            "tok-dev",
		Tier:          model.TierDeveloper,
		GigachatLimit: model.LimitUnlimited,
		OpenAILimit:   model.LimitUnlimited,
		IsActive:      true,
	})
	require.NoError(t, err)

	token, err := svc.CheckAndConsume("tok-dev", shared.PoolGigachat, 5_000_000, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), token.GigachatUsed)
	assert.Equal(t, model.LimitUnlimited, token.PoolRemaining(shared.PoolGigachat))
}

func TestDeactivate(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	issued, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(issued.Token))

	// Second deactivation finds no active token.
	err = svc.Deactivate(issued.Token)
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindNotFound, appErr.Kind)
}

func TestListDefaultsPagination(t *testing.T) {
	store := newFakeTokenStore()
	svc := newTokenService(store)

	for i := 0; i < 3; i++ {
		_, err := svc.Issue(dto.IssueTokenRequest{Tier: model.TierFree})
		require.NoError(t, err)
	}

	resp, err := svc.List(dto.TokenListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 1, resp.Page)
	assert.Len(t, resp.Tokens, 3)
}

func TestOwnerFingerprintStable(t *testing.T) {
	assert.Equal(t, OwnerFingerprint("user-1"), OwnerFingerprint("user-1"))
	assert.NotEqual(t, OwnerFingerprint("user-1"), OwnerFingerprint("user-2"))
	assert.Len(t, OwnerFingerprint("user-1"), 64)
}
