package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/PatGB5/codeforces-submission-bot/internal/models"
)

type fetchCall struct {
	handle string
	count  int
}

type fakeFeed struct {
	mu      sync.Mutex
	batches [][]models.Submission
	errs    []error
	calls   []fetchCall
}

// queue appends one response; err wins over batch
func (f *fakeFeed) queue(batch []models.Submission, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	f.errs = append(f.errs, err)
}

func (f *fakeFeed) Fetch(ctx context.Context, handle string, count int) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{handle, count})
	if len(f.batches) == 0 {
		return nil, errors.New("no response queued")
	}
	batch, err := f.batches[0], f.errs[0]
	f.batches, f.errs = f.batches[1:], f.errs[1:]
	if err != nil {
		return nil, err
	}
	if len(batch) > count {
		batch = batch[:count]
	}
	return batch, nil
}

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string][]models.SheetRow
	readErr   error
	clearErr  error
	appendErr error
	ops       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]models.SheetRow)}
}

func (s *fakeStore) ReadRows(ctx context.Context, storeID, rng string) ([]models.SheetRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "read:"+rng)
	if s.readErr != nil {
		return nil, s.readErr
	}
	return append([]models.SheetRow(nil), s.rows[storeID]...), nil
}

func (s *fakeStore) ClearRows(ctx context.Context, storeID, rng string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "clear:"+rng)
	if s.clearErr != nil {
		return s.clearErr
	}
	delete(s.rows, storeID)
	return nil
}

func (s *fakeStore) AppendRows(ctx context.Context, storeID, rng string, rows []models.SheetRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "append:"+rng)
	if s.appendErr != nil {
		return s.appendErr
	}
	s.rows[storeID] = append(s.rows[storeID], rows...)
	return nil
}

func (s *fakeStore) get(storeID string) []models.SheetRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SheetRow(nil), s.rows[storeID]...)
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{chatID, text})
	return n.err
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.TrackingSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.TrackingSession)}
}

func (s *fakeSessionStore) Save(ctx context.Context, session models.TrackingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Owner] = session
	return nil
}

func (s *fakeSessionStore) Delete(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, owner)
	return nil
}

func (s *fakeSessionStore) List(ctx context.Context) ([]models.TrackingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TrackingSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.SubmissionEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event models.SubmissionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// replacingStore adds the atomic replace path to fakeStore
type replacingStore struct {
	*fakeStore
	replaceErr error
}

func (s *replacingStore) ReplaceRows(ctx context.Context, storeID, rng string, rows []models.SheetRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "replace:"+rng)
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.rows[storeID] = append([]models.SheetRow(nil), rows...)
	return nil
}

// handleFeed serves a fixed batch per handle
type handleFeed struct {
	mu      sync.Mutex
	batches map[string][]models.Submission
}

func (f *handleFeed) set(handle string, batch []models.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = make(map[string][]models.Submission)
	}
	f.batches[handle] = batch
}

func (f *handleFeed) Fetch(ctx context.Context, handle string, count int) ([]models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.batches[handle]
	if len(batch) > count {
		batch = batch[:count]
	}
	return batch, nil
}

// pausingStore holds the first ReadRows call after reading until release is closed
type pausingStore struct {
	*fakeStore
	paused  atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		fakeStore: newFakeStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (s *pausingStore) ReadRows(ctx context.Context, storeID, rng string) ([]models.SheetRow, error) {
	rows, err := s.fakeStore.ReadRows(ctx, storeID, rng)
	if s.paused.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return rows, err
}

// pausingSessionStore holds the first Save call before writing until release is closed
type pausingSessionStore struct {
	*fakeSessionStore
	paused  atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newPausingSessionStore() *pausingSessionStore {
	return &pausingSessionStore{
		fakeSessionStore: newFakeSessionStore(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (s *pausingSessionStore) Save(ctx context.Context, session models.TrackingSession) error {
	if s.paused.CompareAndSwap(false, true) {
		close(s.entered)
		<-s.release
	}
	return s.fakeSessionStore.Save(ctx, session)
}
