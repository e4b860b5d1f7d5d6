package service

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Tautulli/Tautulli-sub004/config"
	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/Tautulli/Tautulli-sub004/entities"
	"github.com/Tautulli/Tautulli-sub004/repository"
	"github.com/rs/zerolog"
)

// SessionSource is the media-server collaborator: the active session list
// on every tick, and fresh metadata at session completion.
type SessionSource interface {
	GetSessions(ctx context.Context) ([]dto.Snapshot, error)
	GetMetadata(ctx context.Context, ratingKey string) (*dto.Metadata, error)
}

// Dispatcher receives transition events. Implementations must not block
// the poll loop.
type Dispatcher interface {
	Notify(ctx context.Context, transition constant.Transition, session entities.Session)
}

// Monitor runs the poll-diff-commit cycle. A mutex serializes ticks so at
// most one diff cycle is in flight and each tick observes a consistent
// before state.
type Monitor struct {
	repo       repository.SessionRepository
	source     SessionSource
	dispatcher Dispatcher
	th         Thresholds
	resolveIP  bool
	mu         sync.Mutex
}

func NewMonitor(repo repository.SessionRepository, source SessionSource, dispatcher Dispatcher, cfg config.Monitor) *Monitor {
	return &Monitor{
		repo:       repo,
		source:     source,
		dispatcher: dispatcher,
		th:         ThresholdsFromConfig(cfg),
		resolveIP:  cfg.ResolveIP,
	}
}

// Run ticks on the configured poll interval until ctx is cancelled. A tick
// that fails is logged and retried on the next interval, never immediately.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.th.PollInterval)
	defer ticker.Stop()

	zerolog.Ctx(ctx).Info().Dur("interval", m.th.PollInterval).Msg("session monitor started")
	for {
		select {
		case <-ctx.Done():
			zerolog.Ctx(ctx).Info().Msg("session monitor stopped")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("poll tick failed")
			}
		}
	}
}

// Tick executes one poll cycle: fetch snapshot, diff against the store,
// apply store and history effects, then hand notifications to the
// dispatcher. Store failures are surfaced to the caller; notifications for
// the tick are dispatched regardless, since completed store effects are
// not rolled back.
func (m *Monitor) Tick(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, err := m.source.GetSessions(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("snapshot fetch failed, skipping tick")
		return nil
	}

	stored, err := m.repo.GetAllSessions(ctx)
	if err != nil {
		return err
	}

	prefs := m.retentionPrefs(ctx, stored)
	plan := Diff(stored, snapshot, time.Now(), m.th, func(username string) bool {
		return prefs[username]
	})

	var firstErr error
	record := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, e := range plan {
		switch eff := e.(type) {
		case UpsertSession:
			sess := eff.Session
			if eff.Inserted && m.resolveIP {
				sess.Hostname = resolveHostname(sess.IPAddress)
			}
			inserted, err := m.repo.UpsertSession(ctx, &sess)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("session_key", sess.SessionKey).Msg("session upsert failed")
				record(err)
				continue
			}
			if inserted != eff.Inserted {
				zerolog.Ctx(ctx).Debug().Str("session_key", sess.SessionKey).Msg("upsert classification drifted from plan")
			}
		case DeleteSession:
			if err := m.repo.DeleteSession(ctx, eff.SessionKey, eff.RatingKey); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("session_key", eff.SessionKey).Msg("session delete failed")
				record(err)
			}
		case CommitHistory:
			if err := m.commitHistory(ctx, eff); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("session_key", eff.Session.SessionKey).Msg("history commit failed")
				record(err)
			}
		}
	}

	for _, e := range plan {
		if n, ok := e.(EmitNotification); ok {
			m.dispatcher.Notify(ctx, n.Transition, n.Session)
		}
	}

	return firstErr
}

// commitHistory freezes one completed session into the history store. A
// metadata fetch failure degrades to the session's last known descriptive
// fields rather than failing the commit.
func (m *Monitor) commitHistory(ctx context.Context, eff CommitHistory) error {
	sess := eff.Session
	entry := &entities.HistoryEntry{
		SessionKey:        sess.SessionKey,
		RatingKey:         sess.RatingKey,
		Started:           sess.Started,
		Stopped:           eff.Stopped,
		ViewOffset:        sess.ViewOffset,
		Duration:          sess.Duration,
		PausedCounter:     sess.PausedCounter,
		Watched:           eff.Watched,
		MediaType:         sess.MediaType,
		User:              sess.User,
		Player:            sess.Player,
		Platform:          sess.Platform,
		IPAddress:         sess.IPAddress,
		TranscodeDecision: sess.TranscodeDecision,
	}
	meta := &entities.HistoryMetadata{
		RatingKey:        sess.RatingKey,
		Title:            sess.Title,
		GrandparentTitle: sess.GrandparentTitle,
		VideoCodec:       sess.VideoCodec,
		AudioCodec:       sess.AudioCodec,
		VideoResolution:  sess.VideoResolution,
		Bitrate:          sess.Bitrate,
	}

	fresh, err := m.source.GetMetadata(ctx, sess.RatingKey)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("rating_key", sess.RatingKey).Msg("metadata fetch failed, committing last known fields")
	} else {
		meta.Title = fresh.Title
		meta.GrandparentTitle = fresh.GrandparentTitle
		meta.Summary = fresh.Summary
		meta.Year = fresh.Year
		meta.Thumb = fresh.Thumb
	}

	return m.repo.CommitHistory(ctx, entry, meta)
}

// retentionPrefs prefetches the per-user retention flag for every user in
// the stored set, so the differ stays free of I/O. A lookup failure
// defaults to retained.
func (m *Monitor) retentionPrefs(ctx context.Context, stored []*entities.Session) map[string]bool {
	prefs := make(map[string]bool, len(stored))
	for _, s := range stored {
		if _, ok := prefs[s.User]; ok {
			continue
		}
		keep, err := m.repo.KeepHistory(ctx, s.User)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user", s.User).Msg("retention lookup failed, defaulting to retained")
			keep = true
		}
		prefs[s.User] = keep
	}
	return prefs
}

func resolveHostname(ip string) string {
	if ip == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
