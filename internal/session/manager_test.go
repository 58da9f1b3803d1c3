package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-gateway-client/internal/auth"
	"ai-gateway-client/internal/logging"
	"ai-gateway-client/internal/securestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceURL = "https://api.openai.com/v1"

type mockIdentity struct{}

func (mockIdentity) Get(ctx context.Context) string { return "dev_test" }

// mockLegacyClient counts issuance calls and can delay to widen the
// coalescing window
type mockLegacyClient struct {
	calls int64
	delay time.Duration
	resp  *LegacyIssueResponse
	err   error
}

func (m *mockLegacyClient) IssueSession(ctx context.Context, req *LegacyIssueRequest) (*LegacyIssueResponse, error) {
	atomic.AddInt64(&m.calls, 1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func newTestManager(t *testing.T, legacy LegacyIssuanceClient) (*Manager, securestore.Store) {
	t.Helper()
	store := securestore.NewMemoryStore()
	logger := logging.Initialize("error")
	return NewManager(store, legacy, mockIdentity{}, testServiceURL, "", nil, logger), store
}

func validPayload() *auth.CredentialPayload {
	return &auth.CredentialPayload{
		Provider:     "openai",
		SessionToken: "sess_from_cred",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
}

func TestGetValidSession_DerivesFromPayloadWithoutNetwork(t *testing.T) {
	legacy := &mockLegacyClient{}
	m, _ := newTestManager(t, legacy)

	payload := validPayload()
	sess, err := m.GetValidSession(context.Background(), false, payload)
	require.NoError(t, err)

	assert.Equal(t, "sess_from_cred", sess.SessionToken)
	assert.Equal(t, "openai", sess.Provider)
	assert.Equal(t, payload.ExpiresAt*1000, sess.ExpiresAt, "expiry must convert seconds to millis")
	assert.Equal(t, testServiceURL, sess.ServiceURL)
	assert.EqualValues(t, 0, atomic.LoadInt64(&legacy.calls), "derivation must make zero network calls")
}

func TestGetValidSession_ReturnsMemoryCache(t *testing.T) {
	m, _ := newTestManager(t, &mockLegacyClient{})

	first, err := m.GetValidSession(context.Background(), false, validPayload())
	require.NoError(t, err)

	// Second call with a different payload must still hit the cache
	other := validPayload()
	other.SessionToken = "sess_other"
	second, err := m.GetValidSession(context.Background(), false, other)
	require.NoError(t, err)

	assert.Equal(t, first.SessionToken, second.SessionToken)
}

func TestGetValidSession_RepopulatesFromStore(t *testing.T) {
	store := securestore.NewMemoryStore()
	logger := logging.Initialize("error")

	persisted := &Session{
		SessionToken: "sess_persisted",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
		Provider:     "openai",
		ServiceURL:   testServiceURL,
	}
	blob, err := persisted.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), testServiceURL, blob))

	// Fresh manager simulates a process restart with the same store
	m := NewManager(store, &mockLegacyClient{}, mockIdentity{}, testServiceURL, "", nil, logger)

	sess, err := m.GetValidSession(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess_persisted", sess.SessionToken)

	// Memory cache is now populated
	assert.NotNil(t, m.Cached(context.Background()))
}

func TestGetValidSession_IgnoresExpiredStoreEntry(t *testing.T) {
	legacy := &mockLegacyClient{resp: &LegacyIssueResponse{
		SessionToken: "sess_fresh",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
		Provider:     "openai",
		ServiceURL:   testServiceURL,
	}}
	m, store := newTestManager(t, legacy)

	expired := &Session{SessionToken: "sess_old", ExpiresAt: time.Now().Add(-time.Minute).UnixMilli()}
	blob, err := expired.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), testServiceURL, blob))

	sess, err := m.GetValidSession(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess_fresh", sess.SessionToken)
	assert.EqualValues(t, 1, atomic.LoadInt64(&legacy.calls))
}

func TestGetValidSession_ForceRefreshBypassesCaches(t *testing.T) {
	m, _ := newTestManager(t, &mockLegacyClient{})

	_, err := m.GetValidSession(context.Background(), false, validPayload())
	require.NoError(t, err)

	fresh := validPayload()
	fresh.SessionToken = "sess_refreshed"
	sess, err := m.GetValidSession(context.Background(), true, fresh)
	require.NoError(t, err)
	assert.Equal(t, "sess_refreshed", sess.SessionToken)
}

func TestGetValidSession_LegacyPath(t *testing.T) {
	legacy := &mockLegacyClient{resp: &LegacyIssueResponse{
		SessionToken: "sess_legacy",
		ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
		Provider:     "openai",
		ServiceURL:   testServiceURL,
	}}
	m, store := newTestManager(t, legacy)

	sess, err := m.GetValidSession(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, "sess_legacy", sess.SessionToken)

	// Persisted to the secure store as well
	_, found, err := store.Load(context.Background(), testServiceURL)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestGetValidSession_NoPayloadNoLegacyIsConfigurationError(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.GetValidSession(context.Background(), false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_configuration")
}

func TestInvalidateSession_Idempotent(t *testing.T) {
	m, store := newTestManager(t, &mockLegacyClient{})

	_, err := m.GetValidSession(context.Background(), false, validPayload())
	require.NoError(t, err)

	require.NoError(t, m.InvalidateSession(context.Background()))
	require.NoError(t, m.InvalidateSession(context.Background()))

	assert.Nil(t, m.Cached(context.Background()))
	_, found, err := store.Load(context.Background(), testServiceURL)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetValidSession_ConcurrentRefreshCoalesces(t *testing.T) {
	legacy := &mockLegacyClient{
		delay: 50 * time.Millisecond,
		resp: &LegacyIssueResponse{
			SessionToken: "sess_shared",
			ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
			Provider:     "openai",
			ServiceURL:   testServiceURL,
		},
	}
	m, _ := newTestManager(t, legacy)

	const callers = 20
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]*Session, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = m.GetValidSession(context.Background(), false, nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "sess_shared", results[i].SessionToken, "all callers must observe the same refreshed session")
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&legacy.calls), "concurrent refreshes must coalesce into one upstream call")
}

func TestGetValidSession_CallerCancellationDoesNotKillSharedFlight(t *testing.T) {
	legacy := &mockLegacyClient{
		delay: 50 * time.Millisecond,
		resp: &LegacyIssueResponse{
			SessionToken: "sess_survivor",
			ExpiresAt:    time.Now().Add(time.Hour).UnixMilli(),
			Provider:     "openai",
			ServiceURL:   testServiceURL,
		},
	}
	m, _ := newTestManager(t, legacy)

	cancelCtx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)

	var cancelledErr error
	go func() {
		defer wg.Done()
		_, cancelledErr = m.GetValidSession(cancelCtx, false, nil)
	}()

	var survivor *Session
	var survivorErr error
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		survivor, survivorErr = m.GetValidSession(context.Background(), false, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	require.Error(t, cancelledErr, "cancelled caller must stop waiting")
	require.NoError(t, survivorErr, "remaining caller must still receive the shared result")
	assert.Equal(t, "sess_survivor", survivor.SessionToken)
}
