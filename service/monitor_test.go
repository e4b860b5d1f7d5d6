package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Tautulli/Tautulli-sub004/config"
	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/Tautulli/Tautulli-sub004/entities"
	"gorm.io/gorm"
)

type fakeSource struct {
	snapshots   [][]dto.Snapshot
	calls       int
	err         error
	metadata    *dto.Metadata
	metadataErr error
}

func (f *fakeSource) GetSessions(ctx context.Context) ([]dto.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.snapshots) {
		return nil, nil
	}
	snap := f.snapshots[f.calls]
	f.calls++
	return snap, nil
}

func (f *fakeSource) GetMetadata(ctx context.Context, ratingKey string) (*dto.Metadata, error) {
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	if f.metadata != nil {
		return f.metadata, nil
	}
	return &dto.Metadata{RatingKey: ratingKey, Title: "Fresh Title"}, nil
}

type fakeRepo struct {
	sessions map[string]*entities.Session
	history  []*entities.HistoryEntry
	metadata []*entities.HistoryMetadata
	keep     map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*entities.Session)}
}

func (f *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return callback(ctx)
}

func (f *fakeRepo) GetDB() *gorm.DB { return nil }

func (f *fakeRepo) Migrate(ctx context.Context) error { return nil }

func (f *fakeRepo) GetAllSessions(ctx context.Context) ([]*entities.Session, error) {
	var out []*entities.Session
	for _, s := range f.sessions {
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeRepo) UpsertSession(ctx context.Context, session *entities.Session) (bool, error) {
	key := session.SessionKey + "/" + session.RatingKey
	if existing, ok := f.sessions[key]; ok {
		session.Started = existing.Started
		copied := *session
		f.sessions[key] = &copied
		return false, nil
	}
	copied := *session
	f.sessions[key] = &copied
	return true, nil
}

func (f *fakeRepo) DeleteSession(ctx context.Context, sessionKey, ratingKey string) error {
	delete(f.sessions, sessionKey+"/"+ratingKey)
	return nil
}

func (f *fakeRepo) CommitHistory(ctx context.Context, entry *entities.HistoryEntry, meta *entities.HistoryMetadata) error {
	for _, existing := range f.history {
		if existing.SessionKey == entry.SessionKey && existing.RatingKey == entry.RatingKey && existing.Started.Equal(entry.Started) {
			return errors.New("duplicate history lifecycle")
		}
	}
	entry.ID = int64(len(f.history) + 1)
	meta.HistoryID = entry.ID
	f.history = append(f.history, entry)
	f.metadata = append(f.metadata, meta)
	return nil
}

func (f *fakeRepo) ListHistory(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	return f.history, nil
}

func (f *fakeRepo) ListHistorySince(ctx context.Context, since time.Time) ([]*entities.HistoryEntry, error) {
	return f.history, nil
}

func (f *fakeRepo) KeepHistory(ctx context.Context, username string) (bool, error) {
	if f.keep == nil {
		return true, nil
	}
	keep, ok := f.keep[username]
	if !ok {
		return true, nil
	}
	return keep, nil
}

type notified struct {
	transition constant.Transition
	sessionKey string
}

type fakeDispatcher struct {
	events []notified
}

func (f *fakeDispatcher) Notify(ctx context.Context, transition constant.Transition, session entities.Session) {
	f.events = append(f.events, notified{transition: transition, sessionKey: session.SessionKey})
}

func monitorConfig() config.Monitor {
	return config.Monitor{
		PollInterval:    15 * time.Second,
		BufferThreshold: 3,
		BufferWait:      60 * time.Second,
		WatchedPercent:  90,
		VideoLogging:    true,
		MusicLogging:    true,
	}
}

func playingSnapshot(viewOffset int64) dto.Snapshot {
	return dto.Snapshot{
		SessionKey: "abc",
		RatingKey:  "100",
		State:      constant.StatePlaying,
		ViewOffset: viewOffset,
		Duration:   600000,
		MediaType:  constant.MediaTypeMovie,
		User:       "alice",
		Title:      "Some Movie",
	}
}

func TestMonitor_TickEndToEnd(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{
		snapshots: [][]dto.Snapshot{
			{playingSnapshot(0)},
			{playingSnapshot(550000)},
			{}, // session gone
		},
	}
	dispatcher := &fakeDispatcher{}
	m := NewMonitor(repo, source, dispatcher, monitorConfig())
	ctx := context.Background()

	// Tick 1: new session.
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("sessions after tick 1 = %d, want 1", len(repo.sessions))
	}
	started := repo.sessions["abc/100"].Started
	if len(repo.history) != 0 {
		t.Fatalf("history after tick 1 = %d, want 0", len(repo.history))
	}

	// Tick 2: over the watched threshold, still open.
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if len(repo.history) != 0 {
		t.Fatalf("history after tick 2 = %d, want 0", len(repo.history))
	}

	// Tick 3: session disappeared.
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	if len(repo.sessions) != 0 {
		t.Fatalf("sessions after tick 3 = %d, want 0", len(repo.sessions))
	}
	if len(repo.history) != 1 {
		t.Fatalf("history after tick 3 = %d, want 1", len(repo.history))
	}
	entry := repo.history[0]
	if !entry.Started.Equal(started) {
		t.Errorf("history Started = %v, want %v", entry.Started, started)
	}
	if entry.Stopped.Before(started) {
		t.Errorf("history Stopped %v precedes Started %v", entry.Stopped, started)
	}
	if !entry.Watched {
		t.Error("history entry not flagged watched")
	}

	want := []notified{
		{constant.TransitionPlay, "abc"},
		{constant.TransitionWatched, "abc"},
		{constant.TransitionWatched, "abc"},
		{constant.TransitionStop, "abc"},
	}
	if len(dispatcher.events) != len(want) {
		t.Fatalf("events = %v, want %v", dispatcher.events, want)
	}
	for i := range want {
		if dispatcher.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", dispatcher.events, want)
		}
	}
}

func TestMonitor_NoReplayOnSteadyState(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{
		snapshots: [][]dto.Snapshot{
			{playingSnapshot(1000)},
			{playingSnapshot(2000)},
			{playingSnapshot(3000)},
		},
	}
	dispatcher := &fakeDispatcher{}
	m := NewMonitor(repo, source, dispatcher, monitorConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := m.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	if len(dispatcher.events) != 1 || dispatcher.events[0].transition != constant.TransitionPlay {
		t.Errorf("events = %v, want a single play", dispatcher.events)
	}
	if len(repo.sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(repo.sessions))
	}
}

func TestMonitor_SnapshotFailureSkipsTick(t *testing.T) {
	repo := newFakeRepo()
	repo.sessions["abc/100"] = &entities.Session{
		SessionKey: "abc", RatingKey: "100",
		State: constant.StatePlaying, Duration: 600000,
		Started: time.Now().Add(-time.Minute), MediaType: constant.MediaTypeMovie,
	}
	source := &fakeSource{err: errors.New("connection refused")}
	dispatcher := &fakeDispatcher{}
	m := NewMonitor(repo, source, dispatcher, monitorConfig())

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("tick returned %v, want nil for a skipped tick", err)
	}
	if len(repo.sessions) != 1 {
		t.Errorf("a skipped tick mutated the session store")
	}
	if len(dispatcher.events) != 0 {
		t.Errorf("a skipped tick emitted %v", dispatcher.events)
	}
}

func TestMonitor_AtMostOneHistoryCommit(t *testing.T) {
	repo := newFakeRepo()
	snapshots := [][]dto.Snapshot{{playingSnapshot(0)}}
	for i := 1; i <= 10; i++ {
		snapshots = append(snapshots, []dto.Snapshot{playingSnapshot(int64(i) * 50000)})
	}
	snapshots = append(snapshots, []dto.Snapshot{})
	source := &fakeSource{snapshots: snapshots}
	m := NewMonitor(repo, source, &fakeDispatcher{}, monitorConfig())

	for i := range snapshots {
		if err := m.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	if len(repo.history) != 1 {
		t.Errorf("history rows = %d, want exactly 1", len(repo.history))
	}
}

func TestMonitor_MetadataFailureDegrades(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{
		snapshots:   [][]dto.Snapshot{{playingSnapshot(550000)}, {}},
		metadataErr: errors.New("metadata timeout"),
	}
	dispatcher := &fakeDispatcher{}
	m := NewMonitor(repo, source, dispatcher, monitorConfig())
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	if len(repo.history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(repo.history))
	}
	// Falls back to the session's last known title.
	if repo.metadata[0].Title != "Some Movie" {
		t.Errorf("metadata Title = %q, want last known %q", repo.metadata[0].Title, "Some Movie")
	}

	var sawStop bool
	for _, e := range dispatcher.events {
		if e.transition == constant.TransitionStop {
			sawStop = true
		}
	}
	if !sawStop {
		t.Error("stop notification dropped on metadata failure")
	}
}

func TestMonitor_FreshMetadataCommitted(t *testing.T) {
	repo := newFakeRepo()
	source := &fakeSource{
		snapshots: [][]dto.Snapshot{{playingSnapshot(1000)}, {}},
		metadata:  &dto.Metadata{RatingKey: "100", Title: "Fresh Title", Year: 2019},
	}
	m := NewMonitor(repo, source, &fakeDispatcher{}, monitorConfig())
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	if len(repo.metadata) != 1 {
		t.Fatalf("metadata rows = %d, want 1", len(repo.metadata))
	}
	if repo.metadata[0].Title != "Fresh Title" || repo.metadata[0].Year != 2019 {
		t.Errorf("metadata = %+v, want the freshly fetched fields", repo.metadata[0])
	}
}

func TestMonitor_RetentionDisabledSkipsHistory(t *testing.T) {
	repo := newFakeRepo()
	repo.keep = map[string]bool{"alice": false}
	source := &fakeSource{
		snapshots: [][]dto.Snapshot{{playingSnapshot(1000)}, {}},
	}
	dispatcher := &fakeDispatcher{}
	m := NewMonitor(repo, source, dispatcher, monitorConfig())
	ctx := context.Background()

	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := m.Tick(ctx); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	if len(repo.history) != 0 {
		t.Errorf("history rows = %d, want 0", len(repo.history))
	}
	var sawStop bool
	for _, e := range dispatcher.events {
		if e.transition == constant.TransitionStop {
			sawStop = true
		}
	}
	if !sawStop {
		t.Error("retention gate suppressed the stop notification")
	}
}
