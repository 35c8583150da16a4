package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

// Defaults used when Options leaves a field empty
const (
	DefaultPollInterval = 10 * time.Second
	DefaultCycleTimeout = 30 * time.Second
	DefaultFetchCount   = 5
	DefaultReadRange    = "Sheet1!A2:F"
	DefaultAppendRange  = "Sheet1!A2"

	seedFetchCount = 1
)

// Options holds polling configuration
type Options struct {
	PollInterval time.Duration
	CycleTimeout time.Duration
	FetchCount   int
	ReadRange    string
	AppendRange  string
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = DefaultCycleTimeout
	}
	if o.FetchCount <= 0 {
		o.FetchCount = DefaultFetchCount
	}
	if o.ReadRange == "" {
		o.ReadRange = DefaultReadRange
	}
	if o.AppendRange == "" {
		o.AppendRange = DefaultAppendRange
	}
	return o
}

// Manager owns the session registry and one poller per ready session.
// A session's cursor is only written by its own poller.
type Manager struct {
	feed     FeedClient
	store    TabularStore
	notifier Notifier
	sessions SessionStore
	events   EventPublisher
	opts     Options

	now   func() time.Time
	newID func() string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	entries map[string]*entry

	guardsMu sync.Mutex
	guards   map[string]*sheetGuard
}

// sheetGuard serializes merges into one sheet shared by several sessions
type sheetGuard struct {
	mu sync.Mutex

	// rows read before a clear whose append failed; the sheet is empty until retried
	pending []models.SheetRow
}

// entry is the registry slot of one session
type entry struct {
	mu      sync.Mutex
	session models.TrackingSession
	poller  *Poller

	// highest submission id already sent to the chat
	delivered     int64
	storeFailures int

	// held while the session is written to or deleted from the SessionStore
	persistMu sync.Mutex
	removed   bool
}

func (e *entry) snapshot() models.TrackingSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *entry) deliveredUpTo() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.delivered
}

func (e *entry) markDelivered(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id > e.delivered {
		e.delivered = id
	}
}

func (e *entry) storeFailed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storeFailures++
	return e.storeFailures
}

func (e *entry) storeRecovered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storeFailures = 0
}

func (e *entry) update(fn func(s *models.TrackingSession) error) (models.TrackingSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(&e.session); err != nil {
		return e.session, err
	}
	return e.session, nil
}

// ManagerOption configures optional collaborators
type ManagerOption func(*Manager)

// WithSessionStore persists ready sessions so they survive restarts
func WithSessionStore(store SessionStore) ManagerOption {
	return func(m *Manager) {
		m.sessions = store
	}
}

// WithEventPublisher publishes every detected submission
func WithEventPublisher(publisher EventPublisher) ManagerOption {
	return func(m *Manager) {
		m.events = publisher
	}
}

// withClock replaces time and id generation in tests
func withClock(now func() time.Time, newID func() string) ManagerOption {
	return func(m *Manager) {
		m.now = now
		m.newID = newID
	}
}

// NewManager creates a new session manager
func NewManager(feed FeedClient, store TabularStore, notifier Notifier, opts Options, extra ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		feed:     feed,
		store:    store,
		notifier: notifier,
		opts:     opts.withDefaults(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
		guards:   make(map[string]*sheetGuard),
	}

	for _, opt := range extra {
		opt(m)
	}

	return m
}

// Begin creates a session waiting for its handle
func (m *Manager) Begin(ctx context.Context, owner string, chatID int64) (models.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[owner]; exists {
		return models.TrackingSession{}, ErrSessionExists
	}

	s := models.NewTrackingSession(m.newID(), owner, chatID, m.now())
	m.entries[owner] = &entry{session: *s}

	slog.Info("session created", "session_id", s.ID, "owner", owner, "chat_id", chatID)
	return *s, nil
}

// SubmitHandle records the Codeforces handle
func (m *Manager) SubmitHandle(ctx context.Context, owner, handle string) (models.TrackingSession, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return models.TrackingSession{}, ErrEmptyHandle
	}

	e, err := m.lookup(owner)
	if err != nil {
		return models.TrackingSession{}, err
	}

	return e.update(func(s *models.TrackingSession) error {
		return s.SetHandle(handle, m.now())
	})
}

// SubmitSheetID records the sheet id and initializes the session. On failure the
// session is destroyed and ErrInitializationFailed is returned.
func (m *Manager) SubmitSheetID(ctx context.Context, owner, sheetID string) (models.TrackingSession, error) {
	sheetID = strings.TrimSpace(sheetID)
	if sheetID == "" {
		return models.TrackingSession{}, ErrEmptySheetID
	}

	e, err := m.lookup(owner)
	if err != nil {
		return models.TrackingSession{}, err
	}

	s, err := e.update(func(s *models.TrackingSession) error {
		return s.SetSheetID(sheetID, m.now())
	})
	if err != nil {
		return s, err
	}

	return m.initialize(ctx, e)
}

// Track runs the whole bootstrap in one call
func (m *Manager) Track(ctx context.Context, req models.TrackRequest) (models.TrackingSession, error) {
	if strings.TrimSpace(req.Handle) == "" {
		return models.TrackingSession{}, ErrEmptyHandle
	}
	if strings.TrimSpace(req.SheetID) == "" {
		return models.TrackingSession{}, ErrEmptySheetID
	}

	if _, err := m.Begin(ctx, req.Owner, req.ChatID); err != nil {
		return models.TrackingSession{}, err
	}
	if _, err := m.SubmitHandle(ctx, req.Owner, req.Handle); err != nil {
		m.remove(req.Owner, nil)
		return models.TrackingSession{}, err
	}
	return m.SubmitSheetID(ctx, req.Owner, req.SheetID)
}

// initialize seeds the cursor from the most recent submission and starts polling
func (m *Manager) initialize(ctx context.Context, e *entry) (models.TrackingSession, error) {
	s := e.snapshot()

	batch, err := m.feed.Fetch(ctx, s.Handle, seedFetchCount)
	if err != nil {
		m.remove(s.Owner, e)
		slog.Error("session initialization failed",
			"error", err,
			"session_id", s.ID,
			"handle", s.Handle,
		)
		return s, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	// A handle without submissions starts from an empty cursor
	var seed int64
	if len(batch) > 0 {
		seed = batch[0].ID
	}

	s, err = e.update(func(s *models.TrackingSession) error {
		return s.MarkReady(seed, m.now())
	})
	if err != nil {
		m.remove(s.Owner, e)
		return s, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	if !m.startPoller(e, s) {
		return s, fmt.Errorf("%w: session stopped during initialization", ErrInitializationFailed)
	}
	m.saveSession(ctx, e, s)

	slog.Info("session ready", "session_id", s.ID, "handle", s.Handle, "cursor", s.Cursor)
	return s, nil
}

// Stop destroys a session. An in-flight poll cycle finishes first.
func (m *Manager) Stop(ctx context.Context, owner string) error {
	m.mu.Lock()
	e, ok := m.entries[owner]
	var poller *Poller
	if ok {
		delete(m.entries, owner)
		poller = e.poller
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	if poller != nil {
		poller.Stop()
	}

	s := e.snapshot()
	e.persistMu.Lock()
	e.removed = true
	if m.sessions != nil {
		if err := m.sessions.Delete(ctx, owner); err != nil {
			slog.Error("failed to delete persisted session", "error", err, "session_id", s.ID)
		}
	}
	e.persistMu.Unlock()

	slog.Info("session stopped", "session_id", s.ID, "owner", owner, "state", s.State)
	return nil
}

// Get returns a copy of the session owned by owner
func (m *Manager) Get(owner string) (models.TrackingSession, error) {
	e, err := m.lookup(owner)
	if err != nil {
		return models.TrackingSession{}, err
	}
	return e.snapshot(), nil
}

// GetByID returns a copy of the session with the given id
func (m *Manager) GetByID(id string) (models.TrackingSession, error) {
	for _, s := range m.List() {
		if s.ID == id {
			return s, nil
		}
	}
	return models.TrackingSession{}, ErrSessionNotFound
}

// List returns copies of all sessions, oldest first
func (m *Manager) List() []models.TrackingSession {
	m.mu.RLock()
	sessions := make([]models.TrackingSession, 0, len(m.entries))
	for _, e := range m.entries {
		sessions = append(sessions, e.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Restore resumes the persisted ready sessions with their stored cursors
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.sessions == nil {
		return 0, nil
	}

	stored, err := m.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	restored := 0
	for _, s := range stored {
		if !s.IsReady() {
			slog.Warn("skipping persisted session that is not ready", "session_id", s.ID, "state", s.State)
			continue
		}

		m.mu.Lock()
		if _, exists := m.entries[s.Owner]; exists {
			m.mu.Unlock()
			continue
		}
		e := &entry{session: s}
		m.entries[s.Owner] = e
		m.mu.Unlock()

		if !m.startPoller(e, s) {
			continue
		}
		restored++
		slog.Info("session restored", "session_id", s.ID, "handle", s.Handle, "cursor", s.Cursor)
	}

	return restored, nil
}

// ExpireStale destroys sessions stuck in a bootstrap state and returns them
func (m *Manager) ExpireStale(handleTimeout, sheetTimeout time.Duration) []models.TrackingSession {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []models.TrackingSession
	for owner, e := range m.entries {
		s := e.snapshot()
		var limit time.Duration
		switch s.State {
		case models.SessionAwaitingHandle:
			limit = handleTimeout
		case models.SessionAwaitingSheetID:
			limit = sheetTimeout
		default:
			continue
		}
		if limit > 0 && s.StateAge(now) > limit {
			delete(m.entries, owner)
			expired = append(expired, s)
		}
	}
	return expired
}

// Ping reports whether the manager still accepts work
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.ctx.Err(); err != nil {
		return errors.New("manager closed")
	}
	return nil
}

// Close stops every poller, waiting for in-flight cycles. Persisted state is kept.
func (m *Manager) Close() error {
	m.cancel()

	m.mu.RLock()
	pollers := make([]*Poller, 0, len(m.entries))
	for _, e := range m.entries {
		if e.poller != nil {
			pollers = append(pollers, e.poller)
		}
	}
	m.mu.RUnlock()

	for _, p := range pollers {
		p.Stop()
	}
	return nil
}

func (m *Manager) lookup(owner string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[owner]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// remove drops owner from the registry if it still maps to e
func (m *Manager) remove(owner string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.entries[owner]; ok && (e == nil || current == e) {
		delete(m.entries, owner)
	}
}

// startPoller attaches a poller to e unless the session was stopped meanwhile
func (m *Manager) startPoller(e *entry, s models.TrackingSession) bool {
	p := NewPoller(s.ID, m.opts.PollInterval, m.opts.CycleTimeout, func(ctx context.Context) {
		m.runCycle(ctx, e)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[s.Owner] != e {
		return false
	}
	e.poller = p
	p.Start(m.ctx)
	return true
}

// sheetGuard returns the merge guard of sheetID
func (m *Manager) sheetGuard(sheetID string) *sheetGuard {
	m.guardsMu.Lock()
	defer m.guardsMu.Unlock()
	g, ok := m.guards[sheetID]
	if !ok {
		g = &sheetGuard{}
		m.guards[sheetID] = g
	}
	return g
}

// saveSession persists s unless the session was stopped; Stop deletes after any save in flight
func (m *Manager) saveSession(ctx context.Context, e *entry, s models.TrackingSession) {
	if m.sessions == nil {
		return
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	if e.removed {
		return
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		slog.Error("failed to persist session", "error", err, "session_id", s.ID)
	}
}
