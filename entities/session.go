package entities

import (
	"time"

	"github.com/Tautulli/Tautulli-sub004/constant"
	"github.com/google/uuid"
)

// Session is one in-progress playback stream. A session lives from first
// sighting in a poll snapshot until the poll where it disappears, at which
// point it is deleted here and committed to history.
type Session struct {
	ID                  uuid.UUID             `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionKey          string                `json:"session_key" gorm:"type:varchar(50);not null;uniqueIndex:unique_session_content,priority:1"`
	RatingKey           string                `json:"rating_key" gorm:"type:varchar(50);not null;uniqueIndex:unique_session_content,priority:2"`
	State               constant.SessionState `json:"state" gorm:"type:varchar(20);not null"`
	ViewOffset          int64                 `json:"view_offset" gorm:"type:bigint;not null;default:0"`
	Duration            int64                 `json:"duration" gorm:"type:bigint;not null;default:0"`
	PausedCounter       int64                 `json:"paused_counter" gorm:"type:bigint;not null;default:0"`
	BufferCount         int                   `json:"buffer_count" gorm:"type:integer;not null;default:0"`
	BufferLastTriggered *time.Time            `json:"buffer_last_triggered" gorm:"type:timestamptz"`
	Started             time.Time             `json:"started" gorm:"type:timestamptz;not null"`
	IPAddress           string                `json:"ip_address" gorm:"type:varchar(45)"`
	Hostname            string                `json:"hostname" gorm:"type:varchar(255)"`
	MediaType           constant.MediaType    `json:"media_type" gorm:"type:varchar(20);not null"`
	Title               string                `json:"title" gorm:"type:varchar(255)"`
	GrandparentTitle    string                `json:"grandparent_title" gorm:"type:varchar(255)"`
	User                string                `json:"user" gorm:"column:username;type:varchar(255);index:idx_sessions_username"`
	Player              string                `json:"player" gorm:"type:varchar(255)"`
	Platform            string                `json:"platform" gorm:"type:varchar(255)"`
	TranscodeDecision   string                `json:"transcode_decision" gorm:"type:varchar(20)"`
	VideoCodec          string                `json:"video_codec" gorm:"type:varchar(20)"`
	AudioCodec          string                `json:"audio_codec" gorm:"type:varchar(20)"`
	VideoResolution     string                `json:"video_resolution" gorm:"type:varchar(20)"`
	Bitrate             int                   `json:"bitrate" gorm:"type:integer"`
	CreatedAt           time.Time             `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time             `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Session) TableName() string {
	return "sessions"
}
