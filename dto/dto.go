package dto

import (
	"time"

	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/google/uuid"
)

// Snapshot is one currently active stream as reported by the media server
// on a single poll.
type Snapshot struct {
	SessionKey        string                `json:"sessionKey"`
	RatingKey         string                `json:"ratingKey"`
	State             constant.SessionState `json:"state"`
	ViewOffset        int64                 `json:"viewOffset"`
	Duration          int64                 `json:"duration"`
	MediaType         constant.MediaType    `json:"mediaType"`
	Title             string                `json:"title"`
	GrandparentTitle  string                `json:"grandparentTitle"`
	User              string                `json:"user"`
	Player            string                `json:"player"`
	Platform          string                `json:"platform"`
	Address           string                `json:"address"`
	TranscodeDecision string                `json:"transcodeDecision"`
	VideoCodec        string                `json:"videoCodec"`
	AudioCodec        string                `json:"audioCodec"`
	VideoResolution   string                `json:"videoResolution"`
	Bitrate           int                   `json:"bitrate"`
}

// Metadata is the descriptive record fetched from the media server for a
// single library item, used to freeze history metadata at commit time.
type Metadata struct {
	RatingKey        string `json:"ratingKey"`
	Title            string `json:"title"`
	GrandparentTitle string `json:"grandparentTitle"`
	Summary          string `json:"summary"`
	Year             int    `json:"year"`
	Thumb            string `json:"thumb"`
}

// NotificationMessage is the payload published to the notification exchange
// for every session transition.
type NotificationMessage struct {
	ID               uuid.UUID             `json:"id"`
	Transition       constant.Transition   `json:"transition"`
	SessionKey       string                `json:"sessionKey"`
	RatingKey        string                `json:"ratingKey"`
	State            constant.SessionState `json:"state"`
	ViewOffset       int64                 `json:"viewOffset"`
	Duration         int64                 `json:"duration"`
	MediaType        constant.MediaType    `json:"mediaType"`
	Title            string                `json:"title"`
	GrandparentTitle string                `json:"grandparentTitle"`
	User             string                `json:"user"`
	Player           string                `json:"player"`
	Started          time.Time             `json:"started"`
	EmittedAt        time.Time             `json:"emittedAt"`
}
