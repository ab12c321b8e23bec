package services

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ghostwriter-labs/gate_api/model"
)

// fakeCache is an in-memory stand-in for the Redis substrate.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	incrErr error
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeCache) Set(_ stdcontext.Context, key string, value interface{}, expiration time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		var err error
		raw, err = json.Marshal(value)
		if err != nil {
			return err
		}
	}

	f.data[key] = string(raw)
	f.ttls[key] = expiration
	return nil
}

func (f *fakeCache) Get(_ stdcontext.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeCache) GetJSON(_ stdcontext.Context, key string, dest interface{}) (bool, error) {
	if f.getErr != nil {
		return false, f.getErr
	}

	f.mu.Lock()
	raw, ok := f.data[key]
	f.mu.Unlock()
	if !ok {
		return false, nil
	}

	return true, json.Unmarshal([]byte(raw), dest)
}

func (f *fakeCache) Delete(_ stdcontext.Context, keys ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var removed int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			delete(f.ttls, key)
			removed++
		}
	}
	return removed, nil
}

func (f *fakeCache) Increment(_ stdcontext.Context, key string) (int64, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	if raw, ok := f.data[key]; ok {
		_ = json.Unmarshal([]byte(raw), &count)
	}
	count++

	raw, _ := json.Marshal(count)
	f.data[key] = string(raw)
	return count, nil
}

func (f *fakeCache) Expire(_ stdcontext.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = expiration
	return nil
}

func (f *fakeCache) TTL(_ stdcontext.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key], nil
}

func (f *fakeCache) Keys(_ stdcontext.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := strings.TrimSuffix(pattern, "*")
	keys := make([]string, 0)
	for key := range f.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// fakeTokenStore mirrors the conditional-update semantics of the real store.
type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.AccessToken

	getErr     error
	consumeErr error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*model.AccessToken)}
}

func (f *fakeTokenStore) CreateToken(token *model.AccessToken) (*model.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	token.CreatedAt = now
	token.UpdatedAt = now
	cp := *token
	f.tokens[token.ID] = &cp
	return token, nil
}

func (f *fakeTokenStore) GetToken(id string) (*model.AccessToken, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[id]
	if !ok {
		return nil, fmt.Errorf("NOT_FOUND: %w", gorm.ErrRecordNotFound)
	}
	cp := *token
	return &cp, nil
}

func (f *fakeTokenStore) UpdateToken(token *model.AccessToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *token
	f.tokens[token.ID] = &cp
	return nil
}

func (f *fakeTokenStore) DeactivateToken(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[id]
	if !ok || !token.IsActive {
		return false, nil
	}
	token.IsActive = false
	return true, nil
}

func (f *fakeTokenStore) GetActiveTokenByFingerprint(fingerprint, tier string) (*model.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, token := range f.tokens {
		if token.OwnerFingerprint == fingerprint && token.Tier == tier && token.IsActive {
			cp := *token
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTokenStore) DeactivateTokensByFingerprint(fingerprint, tier string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var retired int64
	for _, token := range f.tokens {
		if token.OwnerFingerprint == fingerprint && token.Tier == tier && token.IsActive {
			token.IsActive = false
			retired++
		}
	}
	return retired, nil
}

func (f *fakeTokenStore) ListTokens(tier string, active *bool, page, pageSize int) ([]model.AccessToken, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.AccessToken, 0)
	for _, token := range f.tokens {
		if tier != "" && token.Tier != tier {
			continue
		}
		if active != nil && token.IsActive != *active {
			continue
		}
		out = append(out, *token)
	}
	return out, int64(len(out)), nil
}

func (f *fakeTokenStore) ConsumePool(id, pool string, amount int64, ip string) (bool, error) {
	if f.consumeErr != nil {
		return false, f.consumeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	token, ok := f.tokens[id]
	if !ok || !token.IsActive {
		return false, nil
	}

	limit := token.PoolLimit(pool)
	used := token.PoolUsed(pool)
	if limit != model.LimitUnlimited && used+amount > limit {
		return false, nil
	}

	if pool == "openai" {
		token.OpenAIUsed += amount
	} else {
		token.GigachatUsed += amount
	}
	token.TotalUsed += amount
	now := time.Now()
	token.LastUsedAt = &now
	if ip != "" {
		token.LastKnownIP = ip
	}
	return true, nil
}

// fakeSchedulerStore records calls for the scheduler job bodies.
type fakeSchedulerStore struct {
	expired   int64
	due       []model.AccessToken
	renewErrs map[string]error
	renewed   []string
	prunable  int64
	pruned    int64

	pruneCalled bool
}

func (f *fakeSchedulerStore) BulkExpireTokens(now time.Time) (int64, error) {
	return f.expired, nil
}

func (f *fakeSchedulerStore) GetTokensDueForRenewal(now time.Time, tiers []string) ([]model.AccessToken, error) {
	return f.due, nil
}

func (f *fakeSchedulerStore) RenewToken(id string, now, nextRenewal time.Time) (bool, error) {
	if err := f.renewErrs[id]; err != nil {
		return false, err
	}
	f.renewed = append(f.renewed, id)
	return true, nil
}

func (f *fakeSchedulerStore) CountPrunableTokens(cutoff time.Time) (int64, error) {
	return f.prunable, nil
}

func (f *fakeSchedulerStore) PruneTokens(cutoff time.Time) (int64, error) {
	f.pruneCalled = true
	return f.pruned, nil
}

type fakeArchiver struct {
	archived int64
	err      error
}

func (f *fakeArchiver) ArchiveBatch(before time.Time) (int64, error) {
	return f.archived, f.err
}

// fakeEventStore captures durable audit writes.
type fakeEventStore struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (f *fakeEventStore) CreateSecurityEvent(event *model.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeEventStore) GetRecentEvents(identity string, since time.Time, limit int) ([]model.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.SecurityEvent, 0)
	for _, event := range f.events {
		if identity != "" && event.Identity != identity {
			continue
		}
		if event.CreatedAt.Before(since) {
			continue
		}
		out = append(out, event)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventStore) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.events))
	for _, event := range f.events {
		types = append(types, event.EventType)
	}
	return types
}
