package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	auditdomain "authcore/internal/audit/domain"
	devicedomain "authcore/internal/device/domain"
	"authcore/internal/security"
	"authcore/internal/session/domain"
	sessionrepo "authcore/internal/session/repository"
	telemetrydomain "authcore/internal/telemetry/domain"
	"authcore/internal/user/cache"
	userdomain "authcore/internal/user/domain"
	userrepo "authcore/internal/user/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type auditEntry struct {
	userID   int64
	action   string
	metadata string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeAudit) LogEvent(_ context.Context, userID int64, action, _, metadata string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{userID: userID, action: action, metadata: metadata})
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		out = append(out, e.action)
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev *telemetrydomain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// waitFor polls until an event of eventType arrives; emits are asynchronous.
func (r *recordingEmitter) waitFor(t *testing.T, eventType string) *telemetrydomain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.EventType == eventType {
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q event emitted", eventType)
	return nil
}

type fakeStatusCache struct {
	mu      sync.Mutex
	entries map[int64]cache.Status
	getErr  error
	sets    int
}

func newFakeStatusCache() *fakeStatusCache {
	return &fakeStatusCache{entries: make(map[int64]cache.Status)}
}

func (c *fakeStatusCache) Get(_ context.Context, userID int64) (cache.Status, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return cache.Status{}, false, c.getErr
	}
	st, ok := c.entries[userID]
	return st, ok, nil
}

func (c *fakeStatusCache) Set(_ context.Context, userID int64, st cache.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = st
	c.sets++
	return nil
}

func (c *fakeStatusCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

// failingSessions wraps a repository and fails selected operations.
type failingSessions struct {
	sessionrepo.Repository
	dedupErr     error
	listErr      error
	deleteAllErr error
	orphanErr    error
}

func (f *failingSessions) DeleteByUserAndDevice(ctx context.Context, userID int64, d devicedomain.Fingerprint) (int64, error) {
	if f.dedupErr != nil {
		return 0, f.dedupErr
	}
	return f.Repository.DeleteByUserAndDevice(ctx, userID, d)
}

func (f *failingSessions) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]*domain.Session, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Repository.ListActiveByUser(ctx, userID, now)
}

func (f *failingSessions) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	if f.deleteAllErr != nil {
		return 0, f.deleteAllErr
	}
	return f.Repository.DeleteByUserID(ctx, userID)
}

func (f *failingSessions) ListOrphanedIDs(ctx context.Context, limit int) ([]string, error) {
	if f.orphanErr != nil {
		return nil, f.orphanErr
	}
	return f.Repository.ListOrphanedIDs(ctx, limit)
}

const testPassword = "correct horse battery staple"

type harness struct {
	engine   *Engine
	users    *userrepo.MemoryRepository
	sessions *sessionrepo.MemoryRepository
	tokens   *security.TokenCodec
	hasher   *security.Hasher
	clock    *fakeClock
	audit    *fakeAudit
	events   *recordingEmitter
}

type harnessOption func(*harness, *Config, *Options, *sessionrepo.Repository)

func withCache(c StatusCache) harnessOption {
	return func(_ *harness, _ *Config, o *Options, _ *sessionrepo.Repository) { o.Cache = c }
}

func withSessions(wrap func(sessionrepo.Repository) sessionrepo.Repository) harnessOption {
	return func(_ *harness, _ *Config, _ *Options, r *sessionrepo.Repository) { *r = wrap(*r) }
}

func withConfig(cfg Config) harnessOption {
	return func(_ *harness, c *Config, _ *Options, _ *sessionrepo.Repository) { *c = cfg }
}

func withLogger(l *zap.Logger) harnessOption {
	return func(_ *harness, _ *Config, o *Options, _ *sessionrepo.Repository) { o.Logger = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		users:  userrepo.NewMemoryRepository(),
		clock:  &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		audit:  &fakeAudit{},
		events: &recordingEmitter{},
		hasher: security.NewHasher(4),
	}
	h.sessions = sessionrepo.NewMemoryRepository(h.users)
	h.users.SetSessionPurger(h.sessions)
	h.tokens = security.NewTestTokenCodec(h.clock.Now)

	cfg := Config{}
	o := Options{Audit: h.audit, Events: h.events, Logger: zap.NewNop(), Now: h.clock.Now}
	var sessions sessionrepo.Repository = h.sessions
	for _, opt := range opts {
		opt(h, &cfg, &o, &sessions)
	}
	h.engine = NewEngine(h.users, sessions, h.hasher, h.tokens, cfg, o)
	return h
}

func (h *harness) createUser(t *testing.T, email string, role userdomain.Role) *userdomain.User {
	t.Helper()
	hash, err := h.hasher.Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := &userdomain.User{Email: email, PasswordHash: hash, Role: role, Active: true}
	if err := h.users.Create(context.Background(), u); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return u
}

func (h *harness) signIn(t *testing.T, email string, device devicedomain.Fingerprint) *TokenPair {
	t.Helper()
	pair, err := h.engine.SignIn(context.Background(), email, testPassword, device)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return pair
}

func (h *harness) activeAgents(t *testing.T, userID int64) map[string]bool {
	t.Helper()
	active, err := h.sessions.ListActiveByUser(context.Background(), userID, h.clock.Now())
	if err != nil {
		t.Fatalf("ListActiveByUser: %v", err)
	}
	out := make(map[string]bool, len(active))
	for _, s := range active {
		if s.UserAgent != nil {
			out[*s.UserAgent] = true
		}
	}
	return out
}

func device(n int) devicedomain.Fingerprint {
	return devicedomain.NewFingerprint(fmt.Sprintf("agent-%d", n), fmt.Sprintf("10.0.0.%d", n))
}

func sessionIDOf(t *testing.T, tokens *security.TokenCodec, refresh string) string {
	t.Helper()
	claims, err := tokens.VerifyRefresh(refresh)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	return claims.SessionID
}

func TestSignIn(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "alice@example.com", userdomain.RoleClient)

	pair := h.signIn(t, "  ALICE@example.com ", device(1))
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("ExpiresIn = %d, want 900", pair.ExpiresIn)
	}
	access, err := h.tokens.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if access.UserID != u.ID || access.Email != u.Email || access.Role != string(userdomain.RoleClient) {
		t.Errorf("access claims = %+v", access)
	}

	id := sessionIDOf(t, h.tokens, pair.RefreshToken)
	if len(id) != 64 {
		t.Errorf("session id length = %d, want 64", len(id))
	}
	s := h.sessions.Get(id)
	if s == nil {
		t.Fatal("session not persisted")
	}
	if s.UserID != u.ID {
		t.Errorf("UserID = %d, want %d", s.UserID, u.ID)
	}
	if !security.RefreshTokenHashEqual(pair.RefreshToken, s.TokenHash) {
		t.Error("stored hash does not match refresh token")
	}
	if want := h.clock.Now().Add(24 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, want)
	}
	if s.LastUsedAt != nil {
		t.Error("new session should have no LastUsedAt")
	}
	if s.UserAgent == nil || *s.UserAgent != "agent-1" || s.IPAddress == nil || *s.IPAddress != "10.0.0.1" {
		t.Errorf("device not stored: %v", s.Device())
	}
	h.events.waitFor(t, telemetrydomain.EventSessionIssued)
}

func TestSignIn_Failures(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "bob@example.com", userdomain.RoleClient)
	inactive := h.createUser(t, "gone@example.com", userdomain.RoleClient)
	if _, err := h.users.Deactivate(context.Background(), inactive.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
		kind     Kind
	}{
		{"unknown email", "nobody@example.com", testPassword, ErrUserNotFound, KindNotFound},
		{"inactive user", "gone@example.com", testPassword, ErrUserNotFound, KindNotFound},
		{"wrong password", "bob@example.com", "nope", ErrInvalidCredentials, KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.SignIn(context.Background(), tt.email, tt.password, device(1))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.kind)
			}
		})
	}
	if h.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.sessions.Len())
	}
	if got := h.audit.actions(); len(got) != 1 || got[0] != auditdomain.ActionSignInFailure {
		t.Errorf("audit actions = %v", got)
	}
}

func TestRefresh_RotatesAndInvalidatesPredecessor(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	first := h.signIn(t, "u@example.com", device(1))
	oldID := sessionIDOf(t, h.tokens, first.RefreshToken)
	created := h.sessions.Get(oldID).CreatedAt

	h.clock.Advance(time.Minute)
	second, err := h.engine.Refresh(context.Background(), first.RefreshToken, device(2))
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	newID := sessionIDOf(t, h.tokens, second.RefreshToken)
	if newID == oldID {
		t.Fatal("session id was not rotated")
	}
	if h.sessions.Get(oldID) != nil {
		t.Error("old session row still present")
	}
	s := h.sessions.Get(newID)
	if s == nil {
		t.Fatal("rotated session missing")
	}
	if h.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.sessions.Len())
	}
	if s.LastUsedAt == nil || !s.LastUsedAt.Equal(h.clock.Now()) {
		t.Errorf("LastUsedAt = %v, want %v", s.LastUsedAt, h.clock.Now())
	}
	if !s.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed: %v -> %v", created, s.CreatedAt)
	}
	if want := h.clock.Now().Add(24 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, want)
	}
	if *s.UserAgent != "agent-2" {
		t.Errorf("UserAgent = %q, want agent-2", *s.UserAgent)
	}
	if !security.RefreshTokenHashEqual(second.RefreshToken, s.TokenHash) {
		t.Error("stored hash does not match rotated token")
	}

	_, err = h.engine.Refresh(context.Background(), first.RefreshToken, device(1))
	if !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("replayed refresh err = %v, want ErrRefreshTokenNotFound", err)
	}
	if KindOf(err) != KindUnauthorized {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if _, err := h.engine.Refresh(context.Background(), second.RefreshToken, device(2)); err != nil {
		t.Errorf("current token should still refresh: %v", err)
	}
	h.events.waitFor(t, telemetrydomain.EventSessionRotated)
}

func TestRefresh_InvalidTokens(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))

	other, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  "other-access",
		RefreshSecret: "other-refresh",
		Issuer:        "test-issuer",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Now:           h.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	forged, _, err := other.SignRefresh(security.RefreshClaims{UserID: 1, SessionID: sessionIDOf(t, h.tokens, pair.RefreshToken)})
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"malformed", "not-a-jwt"},
		{"empty", ""},
		{"bad signature", forged},
		{"access token", pair.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Refresh(context.Background(), tt.token, device(1))
			if !errors.Is(err, ErrRefreshTokenInvalid) {
				t.Fatalf("err = %v, want ErrRefreshTokenInvalid", err)
			}
		})
	}
	if h.sessions.Len() != 1 {
		t.Errorf("invalid tokens must not touch sessions; have %d", h.sessions.Len())
	}
}

func TestRefresh_UnknownSession(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	token, _, err := h.tokens.SignRefresh(security.RefreshClaims{UserID: u.ID, SessionID: "feedface"})
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	if _, err := h.engine.Refresh(context.Background(), token, device(1)); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("err = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))
	id := sessionIDOf(t, h.tokens, pair.RefreshToken)

	h.clock.Advance(25 * time.Hour)
	_, err := h.engine.Refresh(context.Background(), pair.RefreshToken, device(1))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if h.sessions.Get(id) != nil {
		t.Error("expired session should be deleted")
	}
}

func TestRefresh_ExpiredSessionRow(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	token, _, err := h.tokens.SignRefresh(security.RefreshClaims{UserID: u.ID, SessionID: "stale-session"})
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	now := h.clock.Now()
	if err := h.sessions.Create(context.Background(), &domain.Session{
		ID:        "stale-session",
		UserID:    u.ID,
		TokenHash: security.HashRefreshToken(token),
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-time.Second),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = h.engine.Refresh(context.Background(), token, device(1))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want ErrTokenExpired", err)
	}
	if h.sessions.Get("stale-session") != nil {
		t.Error("expired session should be deleted")
	}
}

func TestRefresh_TheftRevokesEverySession(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, withLogger(zap.New(core)))
	u := h.createUser(t, "victim@example.com", userdomain.RoleClient)
	bystander := h.createUser(t, "other@example.com", userdomain.RoleClient)

	var pairs []*TokenPair
	for i := 1; i <= 3; i++ {
		pairs = append(pairs, h.signIn(t, "victim@example.com", device(i)))
	}
	otherPair := h.signIn(t, "other@example.com", device(9))

	// Well signed, names a live session, but was never issued for it.
	replayed, _, err := h.tokens.SignRefresh(security.RefreshClaims{UserID: u.ID, SessionID: sessionIDOf(t, h.tokens, pairs[1].RefreshToken)})
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	_, err = h.engine.Refresh(context.Background(), replayed, device(7))
	if !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("err = %v, want ErrRefreshTokenReuse", err)
	}
	if ReasonOf(err) != "RefreshTokenInvalid" || err.Error() != "all sessions revoked" {
		t.Errorf("reason/message = %q/%q", ReasonOf(err), err.Error())
	}

	for i, p := range pairs {
		if _, err := h.engine.Refresh(context.Background(), p.RefreshToken, device(i+1)); err == nil {
			t.Errorf("session %d still refreshes after theft response", i+1)
		} else if KindOf(err) != KindUnauthorized {
			t.Errorf("session %d: KindOf = %v", i+1, KindOf(err))
		}
	}
	if got := len(h.activeAgents(t, u.ID)); got != 0 {
		t.Errorf("victim sessions = %d, want 0", got)
	}
	if got := len(h.activeAgents(t, bystander.ID)); got != 1 {
		t.Errorf("bystander sessions = %d, want 1", got)
	}
	if _, err := h.engine.Refresh(context.Background(), otherPair.RefreshToken, device(9)); err != nil {
		t.Errorf("bystander refresh: %v", err)
	}

	if got := h.audit.actions(); len(got) != 1 || got[0] != auditdomain.ActionRefreshTokenReuse {
		t.Errorf("audit actions = %v", got)
	}
	warns := logs.FilterMessage("refresh token reuse detected; all sessions revoked").All()
	if len(warns) != 1 {
		t.Fatalf("security warnings = %d, want 1", len(warns))
	}
	if warns[0].ContextMap()["security"] != true {
		t.Error("warning missing security field")
	}
	h.events.waitFor(t, telemetrydomain.EventReuseDetected)
}

func TestRefresh_TheftRevokeFailurePropagates(t *testing.T) {
	storeErr := errors.New("connection reset")
	h := newHarness(t, withSessions(func(r sessionrepo.Repository) sessionrepo.Repository {
		return &failingSessions{Repository: r, deleteAllErr: storeErr}
	}))
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))
	replayed, _, err := h.tokens.SignRefresh(security.RefreshClaims{UserID: u.ID, SessionID: sessionIDOf(t, h.tokens, pair.RefreshToken)})
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	_, err = h.engine.Refresh(context.Background(), replayed, device(1))
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
	if KindOf(err) != KindInternal {
		t.Errorf("KindOf = %v, want Internal", KindOf(err))
	}
}

func TestRefresh_OwnerGone(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))

	// The memory store does not cascade, leaving the session orphaned.
	if err := h.users.Delete(context.Background(), u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := h.engine.Refresh(context.Background(), pair.RefreshToken, device(1))
	if !errors.Is(err, ErrUserNoLongerExists) {
		t.Fatalf("err = %v, want ErrUserNoLongerExists", err)
	}
	if KindOf(err) != KindForbidden {
		t.Errorf("KindOf = %v, want Forbidden", KindOf(err))
	}
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))

	const racers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.engine.Refresh(context.Background(), pair.RefreshToken, device(1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrRefreshTokenNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
	if notFound != racers-1 {
		t.Errorf("losers = %d, want %d", notFound, racers-1)
	}
	if h.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.sessions.Len())
	}
}

func TestIssueNewSession_CapKeepsMostRecent(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)

	for i := 1; i <= 8; i++ {
		h.signIn(t, "u@example.com", device(i))
		h.clock.Advance(time.Second)
	}
	agents := h.activeAgents(t, u.ID)
	if len(agents) != 5 {
		t.Fatalf("active sessions = %d, want 5", len(agents))
	}
	for i := 4; i <= 8; i++ {
		if !agents[fmt.Sprintf("agent-%d", i)] {
			t.Errorf("agent-%d missing; have %v", i, agents)
		}
	}
}

func TestIssueNewSession_EvictsLeastRecentlyUsed(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)

	tokens := make(map[int]string)
	for i := 1; i <= 5; i++ {
		tokens[i] = h.signIn(t, "u@example.com", device(i)).RefreshToken
		h.clock.Advance(time.Second)
	}
	// Refresh order decides lastUsedAt; device 3 ends up the least recently used.
	for _, i := range []int{3, 1, 5, 2, 4} {
		h.clock.Advance(time.Second)
		if _, err := h.engine.Refresh(context.Background(), tokens[i], device(i)); err != nil {
			t.Fatalf("Refresh device %d: %v", i, err)
		}
	}

	h.clock.Advance(time.Second)
	h.signIn(t, "u@example.com", device(6))

	agents := h.activeAgents(t, u.ID)
	if len(agents) != 5 {
		t.Fatalf("active sessions = %d, want 5", len(agents))
	}
	if agents["agent-3"] {
		t.Error("least recently used session survived eviction")
	}
	if !agents["agent-6"] {
		t.Error("new session missing")
	}
}

func TestIssueNewSession_CustomCap(t *testing.T) {
	h := newHarness(t, withConfig(Config{MaxSessionsPerUser: 2}))
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	for i := 1; i <= 4; i++ {
		h.signIn(t, "u@example.com", device(i))
		h.clock.Advance(time.Second)
	}
	if got := len(h.activeAgents(t, u.ID)); got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
}

func TestIssueNewSession_DeviceDedup(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	anonymous := devicedomain.NewFingerprint("", "")

	var last *TokenPair
	for i := 0; i < 4; i++ {
		last = h.signIn(t, "u@example.com", device(1))
		h.signIn(t, "u@example.com", anonymous)
		h.clock.Advance(time.Second)
	}
	if h.sessions.Len() != 2 {
		t.Fatalf("sessions = %d, want 2 (one per device)", h.sessions.Len())
	}
	if got := h.sessions.Get(sessionIDOf(t, h.tokens, last.RefreshToken)); got == nil {
		t.Error("latest sign-in session missing")
	}
	if got := len(h.activeAgents(t, u.ID)); got != 1 {
		t.Errorf("sessions with user agent = %d, want 1", got)
	}
}

func TestIssueNewSession_DedupFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, withSessions(func(r sessionrepo.Repository) sessionrepo.Repository {
		return &failingSessions{Repository: r, dedupErr: errors.New("boom")}
	}))
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	h.signIn(t, "u@example.com", device(1))
	if h.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.sessions.Len())
	}
}

func TestIssueNewSession_CapFailureIsFatal(t *testing.T) {
	storeErr := errors.New("boom")
	h := newHarness(t, withSessions(func(r sessionrepo.Repository) sessionrepo.Repository {
		return &failingSessions{Repository: r, listErr: storeErr}
	}))
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	_, err := h.engine.SignIn(context.Background(), "u@example.com", testPassword, device(1))
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want store error", err)
	}
	if h.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.sessions.Len())
	}
}

func TestRevoke(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	keep := h.signIn(t, "u@example.com", device(1))
	drop := h.signIn(t, "u@example.com", device(2))

	if err := h.engine.Revoke(context.Background(), drop.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if h.sessions.Get(sessionIDOf(t, h.tokens, drop.RefreshToken)) != nil {
		t.Error("revoked session still present")
	}
	if h.sessions.Get(sessionIDOf(t, h.tokens, keep.RefreshToken)) == nil {
		t.Error("other session was revoked")
	}
	if err := h.engine.Revoke(context.Background(), drop.RefreshToken); err != nil {
		t.Errorf("second Revoke should be a no-op, got %v", err)
	}
	if _, err := h.engine.Refresh(context.Background(), drop.RefreshToken, device(2)); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Errorf("refresh after revoke err = %v", err)
	}
	if err := h.engine.Revoke(context.Background(), "garbage"); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Errorf("Revoke(garbage) err = %v, want ErrRefreshTokenInvalid", err)
	}
	if err := h.engine.Revoke(context.Background(), keep.AccessToken); !errors.Is(err, ErrRefreshTokenInvalid) {
		t.Errorf("Revoke(access token) err = %v, want ErrRefreshTokenInvalid", err)
	}
	h.events.waitFor(t, telemetrydomain.EventSessionRevoked)
}

func TestRevoke_ExpiredTokenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))
	h.clock.Advance(48 * time.Hour)
	if err := h.engine.Revoke(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if h.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.sessions.Len())
	}
}

func TestRevokeAll(t *testing.T) {
	h := newHarness(t)
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	other := h.createUser(t, "o@example.com", userdomain.RoleClient)
	for i := 1; i <= 3; i++ {
		h.signIn(t, "u@example.com", device(i))
	}
	h.signIn(t, "o@example.com", device(1))

	n, err := h.engine.RevokeAll(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 3 {
		t.Errorf("revoked = %d, want 3", n)
	}
	if got := len(h.activeAgents(t, other.ID)); got != 1 {
		t.Errorf("other user sessions = %d, want 1", got)
	}
	n, err = h.engine.RevokeAll(context.Background(), u.ID)
	if err != nil || n != 0 {
		t.Errorf("second RevokeAll = %d, %v; want 0, nil", n, err)
	}
	if got := h.audit.actions(); len(got) != 2 || got[0] != auditdomain.ActionRevokeAll {
		t.Errorf("audit actions = %v", got)
	}
}

func TestDeactivateUser(t *testing.T) {
	statuses := newFakeStatusCache()
	h := newHarness(t, withCache(statuses))
	u := h.createUser(t, "u@example.com", userdomain.RoleClient)
	pair := h.signIn(t, "u@example.com", device(1))
	if _, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("VerifyAccess before deactivate: %v", err)
	}

	if err := h.engine.DeactivateUser(context.Background(), u.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if h.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.sessions.Len())
	}
	if _, err := h.engine.Refresh(context.Background(), pair.RefreshToken, device(1)); err == nil {
		t.Error("refresh succeeded after deactivation")
	}
	if _, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrUserNoLongerExists) {
		t.Errorf("VerifyAccess after deactivate err = %v, want ErrUserNoLongerExists", err)
	}
	if _, err := h.engine.SignIn(context.Background(), "u@example.com", testPassword, device(1)); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("SignIn after deactivate err = %v, want ErrUserNotFound", err)
	}
	if err := h.engine.DeactivateUser(context.Background(), 9999); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("DeactivateUser(unknown) err = %v, want ErrUserNotFound", err)
	}
	h.events.waitFor(t, telemetrydomain.EventUserDeactivated)
}

func TestVerifyAccess(t *testing.T) {
	t.Run("stateless without cache", func(t *testing.T) {
		h := newHarness(t)
		u := h.createUser(t, "u@example.com", userdomain.RoleManager)
		pair := h.signIn(t, "u@example.com", device(1))
		claims, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if claims.UserID != u.ID || claims.Role != "MANAGER" {
			t.Errorf("claims = %+v", claims)
		}
		if _, err := h.engine.VerifyAccess(context.Background(), pair.RefreshToken); !errors.Is(err, ErrAccessTokenInvalid) {
			t.Errorf("refresh token as access err = %v", err)
		}
		h.clock.Advance(16 * time.Minute)
		if _, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("expired err = %v, want ErrTokenExpired", err)
		}
	})

	t.Run("cache miss fills from store", func(t *testing.T) {
		statuses := newFakeStatusCache()
		h := newHarness(t, withCache(statuses))
		u := h.createUser(t, "u@example.com", userdomain.RoleClient)
		pair := h.signIn(t, "u@example.com", device(1))
		for i := 0; i < 3; i++ {
			if _, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken); err != nil {
				t.Fatalf("VerifyAccess: %v", err)
			}
		}
		if statuses.sets != 1 {
			t.Errorf("cache sets = %d, want 1", statuses.sets)
		}
		if st := statuses.entries[u.ID]; !st.Active || st.Role != "CLIENT" {
			t.Errorf("cached status = %+v", st)
		}
	})

	t.Run("cached role wins over token role", func(t *testing.T) {
		statuses := newFakeStatusCache()
		h := newHarness(t, withCache(statuses))
		u := h.createUser(t, "u@example.com", userdomain.RoleAdmin)
		pair := h.signIn(t, "u@example.com", device(1))
		statuses.entries[u.ID] = cache.Status{Active: true, Role: "CLIENT"}
		claims, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if claims.Role != "CLIENT" {
			t.Errorf("Role = %q, want CLIENT", claims.Role)
		}
	})

	t.Run("cache error falls back to store", func(t *testing.T) {
		statuses := newFakeStatusCache()
		statuses.getErr = errors.New("redis down")
		h := newHarness(t, withCache(statuses))
		h.createUser(t, "u@example.com", userdomain.RoleClient)
		pair := h.signIn(t, "u@example.com", device(1))
		if _, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken); err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		h := newHarness(t, withCache(newFakeStatusCache()))
		u := h.createUser(t, "u@example.com", userdomain.RoleClient)
		pair := h.signIn(t, "u@example.com", device(1))
		if err := h.users.Delete(context.Background(), u.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := h.engine.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrUserNoLongerExists) {
			t.Errorf("err = %v, want ErrUserNoLongerExists", err)
		}
	})
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrUserNotFound, KindNotFound},
		{fmt.Errorf("wrapped: %w", ErrInvalidCredentials), KindUnauthorized},
		{ErrUserNoLongerExists, KindForbidden},
		{errors.New("db down"), KindInternal},
		{nil, KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestNewEngine_AppliesDefaults(t *testing.T) {
	h := newHarness(t)
	if got := h.engine.cfg.MaxSessionsPerUser; got != DefaultMaxSessionsPerUser {
		t.Errorf("MaxSessionsPerUser = %d, want %d", got, DefaultMaxSessionsPerUser)
	}
	if got := h.engine.cfg.CleanupBatchSize; got != DefaultCleanupBatchSize {
		t.Errorf("CleanupBatchSize = %d, want %d", got, DefaultCleanupBatchSize)
	}
}
