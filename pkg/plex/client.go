package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Tautulli/Tautulli-sub004/config"
	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/Tautulli/Tautulli-sub004/dto"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Client is a thin client for the Plex Media Server HTTP API, covering the
// two calls the monitor needs: the active session list and per-item
// metadata.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg config.Plex) *Client {
	return &Client{
		baseURL: cfg.URL,
		token:   cfg.Token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type mediaContainerResponse struct {
	MediaContainer struct {
		Metadata []sessionMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type sessionMetadata struct {
	SessionKey       string `json:"sessionKey"`
	RatingKey        string `json:"ratingKey"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	GrandparentTitle string `json:"grandparentTitle"`
	Summary          string `json:"summary"`
	Year             int    `json:"year"`
	Thumb            string `json:"thumb"`
	ViewOffset       int64  `json:"viewOffset"`
	Duration         int64  `json:"duration"`
	User             struct {
		Title string `json:"title"`
	} `json:"User"`
	Player struct {
		Title    string `json:"title"`
		Platform string `json:"platform"`
		Address  string `json:"address"`
		State    string `json:"state"`
	} `json:"Player"`
	TranscodeSession struct {
		VideoDecision string `json:"videoDecision"`
	} `json:"TranscodeSession"`
	Media []struct {
		VideoCodec      string `json:"videoCodec"`
		AudioCodec      string `json:"audioCodec"`
		VideoResolution string `json:"videoResolution"`
		Bitrate         int    `json:"bitrate"`
	} `json:"Media"`
}

// GetSessions returns the currently active playback sessions. Transient
// failures are retried with exponential backoff before the poll tick gives
// up and skips.
func (c *Client) GetSessions(ctx context.Context) ([]dto.Snapshot, error) {
	body, err := c.get(ctx, "/status/sessions")
	if err != nil {
		return nil, err
	}

	var resp mediaContainerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode session list: %w", err)
	}

	snapshots := make([]dto.Snapshot, 0, len(resp.MediaContainer.Metadata))
	for _, m := range resp.MediaContainer.Metadata {
		snapshots = append(snapshots, snapshotFromMetadata(m))
	}
	return snapshots, nil
}

// GetMetadata fetches the descriptive record for one library item. Called
// only when a session completes, to freeze the freshest metadata into
// history.
func (c *Client) GetMetadata(ctx context.Context, ratingKey string) (*dto.Metadata, error) {
	body, err := c.get(ctx, "/library/metadata/"+url.PathEscape(ratingKey))
	if err != nil {
		return nil, err
	}

	var resp mediaContainerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("no metadata for rating key %s", ratingKey)
	}

	m := resp.MediaContainer.Metadata[0]
	return &dto.Metadata{
		RatingKey:        m.RatingKey,
		Title:            m.Title,
		GrandparentTitle: m.GrandparentTitle,
		Summary:          m.Summary,
		Year:             m.Year,
		Thumb:            m.Thumb,
	}, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Plex-Token", c.token)

		resp, err := c.http.Do(req)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("plex request failed, retrying")
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound {
			return nil, backoff.Permanent(fmt.Errorf("plex responded %d for %s", resp.StatusCode, path))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("plex responded %d for %s", resp.StatusCode, path)
		}

		return io.ReadAll(resp.Body)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 5 * time.Second
	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
}

func snapshotFromMetadata(m sessionMetadata) dto.Snapshot {
	s := dto.Snapshot{
		SessionKey:        m.SessionKey,
		RatingKey:         m.RatingKey,
		State:             playerState(m.Player.State),
		ViewOffset:        m.ViewOffset,
		Duration:          m.Duration,
		MediaType:         constant.MediaType(m.Type),
		Title:             m.Title,
		GrandparentTitle:  m.GrandparentTitle,
		User:              m.User.Title,
		Player:            m.Player.Title,
		Platform:          m.Player.Platform,
		Address:           m.Player.Address,
		TranscodeDecision: m.TranscodeSession.VideoDecision,
	}
	if s.TranscodeDecision == "" {
		s.TranscodeDecision = "direct play"
	}
	if len(m.Media) > 0 {
		s.VideoCodec = m.Media[0].VideoCodec
		s.AudioCodec = m.Media[0].AudioCodec
		s.VideoResolution = m.Media[0].VideoResolution
		s.Bitrate = m.Media[0].Bitrate
	}
	return s
}

func playerState(state string) constant.SessionState {
	switch state {
	case "playing":
		return constant.StatePlaying
	case "paused":
		return constant.StatePaused
	case "buffering":
		return constant.StateBuffering
	default:
		return constant.StateStopped
	}
}
