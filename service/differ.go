package service

import (
	"time"

	"github.com/Tautulli/Tautulli-sub004/config"
	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/Tautulli/Tautulli-sub004/entities"
)

// Thresholds holds the tracking knobs the differ evaluates on every tick.
type Thresholds struct {
	PollInterval    time.Duration
	BufferThreshold int
	BufferWait      time.Duration
	WatchedPercent  int
	VideoLogging    bool
	MusicLogging    bool
	IgnoreInterval  time.Duration
}

func ThresholdsFromConfig(cfg config.Monitor) Thresholds {
	return Thresholds{
		PollInterval:    cfg.PollInterval,
		BufferThreshold: cfg.BufferThreshold,
		BufferWait:      cfg.BufferWait,
		WatchedPercent:  cfg.WatchedPercent,
		VideoLogging:    cfg.VideoLogging,
		MusicLogging:    cfg.MusicLogging,
		IgnoreInterval:  cfg.IgnoreInterval,
	}
}

// Effect is one intended side effect of a poll tick. Diff returns an
// ordered plan of effects and performs no I/O itself; the monitor applies
// store effects first and hands notifications to the dispatcher after.
type Effect interface {
	effect()
}

type UpsertSession struct {
	Session  entities.Session
	Inserted bool
}

type DeleteSession struct {
	SessionKey string
	RatingKey  string
}

type CommitHistory struct {
	Session entities.Session
	Stopped time.Time
	Watched bool
}

type EmitNotification struct {
	Transition constant.Transition
	Session    entities.Session
}

func (UpsertSession) effect()    {}
func (DeleteSession) effect()    {}
func (CommitHistory) effect()    {}
func (EmitNotification) effect() {}

// Diff classifies every tracked and newly seen session against the poll
// snapshot. keepHistory reports the per-user retention flag; it only gates
// history commits, never notifications.
func Diff(stored []*entities.Session, snapshot []dto.Snapshot, now time.Time, th Thresholds, keepHistory func(username string) bool) []Effect {
	byKey := make(map[string]dto.Snapshot, len(snapshot))
	for _, s := range snapshot {
		byKey[s.SessionKey+"/"+s.RatingKey] = s
	}

	var effects []Effect

	matched := make(map[string]bool, len(stored))
	for _, t := range stored {
		key := t.SessionKey + "/" + t.RatingKey
		s, ok := byKey[key]
		if !ok {
			effects = append(effects, stopEffects(t, now, th, keepHistory)...)
			continue
		}
		matched[key] = true
		effects = append(effects, updateEffects(t, s, now, th)...)
	}

	for _, s := range snapshot {
		if matched[s.SessionKey+"/"+s.RatingKey] {
			continue
		}
		next := sessionFromSnapshot(s, now)
		effects = append(effects,
			UpsertSession{Session: next, Inserted: true},
			EmitNotification{Transition: constant.TransitionPlay, Session: next},
		)
	}

	return effects
}

// updateEffects handles a session present in both the store and the
// snapshot. Transition classification is based on the previous stored
// state, not on the snapshot alone.
func updateEffects(t *entities.Session, s dto.Snapshot, now time.Time, th Thresholds) []Effect {
	next := *t
	next.State = s.State
	next.ViewOffset = s.ViewOffset
	next.Duration = s.Duration
	next.TranscodeDecision = s.TranscodeDecision
	next.VideoCodec = s.VideoCodec
	next.AudioCodec = s.AudioCodec
	next.VideoResolution = s.VideoResolution
	next.Bitrate = s.Bitrate

	var effects []Effect

	if s.State != t.State {
		switch {
		case s.State == constant.StatePaused:
			effects = append(effects, EmitNotification{Transition: constant.TransitionPause, Session: next})
		case t.State == constant.StatePaused && s.State == constant.StatePlaying:
			effects = append(effects, EmitNotification{Transition: constant.TransitionResume, Session: next})
		}
	}

	if s.State == constant.StatePaused {
		// Fixed increment per tick, an approximation of paused wall time.
		next.PausedCounter = t.PausedCounter + int64(th.PollInterval/time.Second)
	}

	if s.State == constant.StateBuffering && th.BufferThreshold > 0 {
		next.BufferCount = t.BufferCount + 1
		switch {
		case t.BufferCount < th.BufferThreshold && next.BufferCount >= th.BufferThreshold:
			effects = append(effects, EmitNotification{Transition: constant.TransitionBuffer, Session: next})
			trigger := now
			next.BufferLastTriggered = &trigger
		case t.BufferLastTriggered != nil && now.Sub(*t.BufferLastTriggered) > th.BufferWait:
			effects = append(effects, EmitNotification{Transition: constant.TransitionBuffer, Session: next})
			trigger := now
			next.BufferLastTriggered = &trigger
		}
	}

	if s.State != constant.StateBuffering && watchedCrossed(next.ViewOffset, next.Duration, th.WatchedPercent) {
		effects = append(effects, EmitNotification{Transition: constant.TransitionWatched, Session: next})
	}

	effects = append(effects, UpsertSession{Session: next})
	return effects
}

// stopEffects handles a tracked session that disappeared from the
// snapshot: store deletion, the final watched check against the last known
// offset, the stop notification, and the gated history commit.
func stopEffects(t *entities.Session, now time.Time, th Thresholds, keepHistory func(username string) bool) []Effect {
	final := *t
	final.State = constant.StateStopped
	watched := watchedCrossed(final.ViewOffset, final.Duration, th.WatchedPercent)

	effects := []Effect{
		DeleteSession{SessionKey: final.SessionKey, RatingKey: final.RatingKey},
	}
	if watched {
		effects = append(effects, EmitNotification{Transition: constant.TransitionWatched, Session: final})
	}
	effects = append(effects, EmitNotification{Transition: constant.TransitionStop, Session: final})

	if shouldLogHistory(&final, now, th, keepHistory) {
		effects = append(effects, CommitHistory{Session: final, Stopped: now, Watched: watched})
	}
	return effects
}

// shouldLogHistory evaluates the three independent history gates. Any one
// suppresses the commit; none of them suppress notifications.
func shouldLogHistory(t *entities.Session, now time.Time, th Thresholds, keepHistory func(username string) bool) bool {
	if t.MediaType.IsVideo() {
		if !th.VideoLogging {
			return false
		}
	} else if !th.MusicLogging {
		return false
	}

	if th.IgnoreInterval > 0 && now.Sub(t.Started) < th.IgnoreInterval {
		return false
	}

	if keepHistory != nil && !keepHistory(t.User) {
		return false
	}
	return true
}

// watchedCrossed reports whether playback progress exceeds the configured
// watched percentage. A zero duration never crosses.
func watchedCrossed(viewOffset, duration int64, percent int) bool {
	if duration <= 0 || percent <= 0 {
		return false
	}
	return viewOffset*100 > duration*int64(percent)
}

func sessionFromSnapshot(s dto.Snapshot, now time.Time) entities.Session {
	return entities.Session{
		SessionKey:        s.SessionKey,
		RatingKey:         s.RatingKey,
		State:             s.State,
		ViewOffset:        s.ViewOffset,
		Duration:          s.Duration,
		Started:           now,
		IPAddress:         s.Address,
		MediaType:         s.MediaType,
		Title:             s.Title,
		GrandparentTitle:  s.GrandparentTitle,
		User:              s.User,
		Player:            s.Player,
		Platform:          s.Platform,
		TranscodeDecision: s.TranscodeDecision,
		VideoCodec:        s.VideoCodec,
		AudioCodec:        s.AudioCodec,
		VideoResolution:   s.VideoResolution,
		Bitrate:           s.Bitrate,
	}
}
