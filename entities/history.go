package entities

import (
	"time"

	"github.com/Tautulli/Tautulli-sub004/constant"
)

// HistoryEntry is one completed session lifecycle. Rows are append-only and
// immutable once written. The unique index on (session_key, rating_key,
// started) absorbs a replayed commit for the same lifecycle.
type HistoryEntry struct {
	ID                int64              `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionKey        string             `json:"session_key" gorm:"type:varchar(50);not null;uniqueIndex:unique_history_lifecycle,priority:1"`
	RatingKey         string             `json:"rating_key" gorm:"type:varchar(50);not null;uniqueIndex:unique_history_lifecycle,priority:2"`
	Started           time.Time          `json:"started" gorm:"type:timestamptz;not null;uniqueIndex:unique_history_lifecycle,priority:3"`
	Stopped           time.Time          `json:"stopped" gorm:"type:timestamptz;not null"`
	ViewOffset        int64              `json:"view_offset" gorm:"type:bigint;not null;default:0"`
	Duration          int64              `json:"duration" gorm:"type:bigint;not null;default:0"`
	PausedCounter     int64              `json:"paused_counter" gorm:"type:bigint;not null;default:0"`
	Watched           bool               `json:"watched" gorm:"not null;default:false"`
	MediaType         constant.MediaType `json:"media_type" gorm:"type:varchar(20);not null"`
	User              string             `json:"user" gorm:"column:username;type:varchar(255);index:idx_history_username"`
	Player            string             `json:"player" gorm:"type:varchar(255)"`
	Platform          string             `json:"platform" gorm:"type:varchar(255)"`
	IPAddress         string             `json:"ip_address" gorm:"type:varchar(45)"`
	TranscodeDecision string             `json:"transcode_decision" gorm:"type:varchar(20)"`
	CreatedAt         time.Time          `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`

	Metadata *HistoryMetadata `json:"metadata,omitempty" gorm:"foreignKey:HistoryID"`
}

func (HistoryEntry) TableName() string {
	return "session_history"
}

// HistoryMetadata is the denormalized descriptive snapshot frozen at commit
// time, one row per history entry.
type HistoryMetadata struct {
	ID               int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	HistoryID        int64  `json:"history_id" gorm:"not null;uniqueIndex:unique_history_metadata"`
	RatingKey        string `json:"rating_key" gorm:"type:varchar(50);not null"`
	Title            string `json:"title" gorm:"type:varchar(255)"`
	GrandparentTitle string `json:"grandparent_title" gorm:"type:varchar(255)"`
	Summary          string `json:"summary" gorm:"type:text"`
	Year             int    `json:"year" gorm:"type:integer"`
	Thumb            string `json:"thumb" gorm:"type:varchar(500)"`
	VideoCodec       string `json:"video_codec" gorm:"type:varchar(20)"`
	AudioCodec       string `json:"audio_codec" gorm:"type:varchar(20)"`
	VideoResolution  string `json:"video_resolution" gorm:"type:varchar(20)"`
	Bitrate          int    `json:"bitrate" gorm:"type:integer"`
}

func (HistoryMetadata) TableName() string {
	return "session_history_metadata"
}
