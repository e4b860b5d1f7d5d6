package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Tautulli/Tautulli-sub004/entities"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SessionRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	Migrate(ctx context.Context) error
	GetAllSessions(ctx context.Context) ([]*entities.Session, error)
	UpsertSession(ctx context.Context, session *entities.Session) (inserted bool, err error)
	DeleteSession(ctx context.Context, sessionKey, ratingKey string) error
	CommitHistory(ctx context.Context, entry *entities.HistoryEntry, meta *entities.HistoryMetadata) error
	ListHistory(ctx context.Context, limit int) ([]*entities.HistoryEntry, error)
	ListHistorySince(ctx context.Context, since time.Time) ([]*entities.HistoryEntry, error)
	KeepHistory(ctx context.Context, username string) (bool, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) SessionRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().Transaction(func(tx *gorm.DB) error {
		err := callback(ctx)
		if err != nil {
			return err
		}
		return nil
	}, opts...)
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.GetDB().WithContext(ctx).AutoMigrate(
		&entities.Session{},
		&entities.HistoryEntry{},
		&entities.HistoryMetadata{},
		&entities.User{},
	)
}

func (r *repo) GetAllSessions(ctx context.Context) ([]*entities.Session, error) {
	var sessions []*entities.Session
	err := r.GetDB().WithContext(ctx).Order("started ASC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpsertSession writes a session keyed by (session_key, rating_key) and
// reports whether the row was inserted rather than updated. The identity
// fields, started timestamp and row id of an existing session are preserved.
func (r *repo) UpsertSession(ctx context.Context, session *entities.Session) (bool, error) {
	existing := &entities.Session{}
	err := r.GetDB().WithContext(ctx).
		Where("session_key = ? AND rating_key = ?", session.SessionKey, session.RatingKey).
		First(existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.GetDB().WithContext(ctx).Create(session).Error; err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	session.ID = existing.ID
	session.Started = existing.Started
	session.CreatedAt = existing.CreatedAt
	if err := r.GetDB().WithContext(ctx).Save(session).Error; err != nil {
		return false, err
	}
	return false, nil
}

func (r *repo) DeleteSession(ctx context.Context, sessionKey, ratingKey string) error {
	return r.GetDB().WithContext(ctx).
		Where("session_key = ? AND rating_key = ?", sessionKey, ratingKey).
		Delete(&entities.Session{}).Error
}

// CommitHistory writes the summary row and its metadata row in one
// transaction, so readers never observe one without the other.
func (r *repo) CommitHistory(ctx context.Context, entry *entities.HistoryEntry, meta *entities.HistoryMetadata) error {
	return r.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		meta.HistoryID = entry.ID
		if err := tx.Create(meta).Error; err != nil {
			return err
		}
		return nil
	})
}

func (r *repo) ListHistory(ctx context.Context, limit int) ([]*entities.HistoryEntry, error) {
	var entries []*entities.HistoryEntry
	err := r.GetDB().WithContext(ctx).
		Preload("Metadata").
		Order("stopped DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListHistorySince(ctx context.Context, since time.Time) ([]*entities.HistoryEntry, error) {
	var entries []*entities.HistoryEntry
	err := r.GetDB().WithContext(ctx).
		Preload("Metadata").
		Where("stopped >= ?", since).
		Order("stopped ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// KeepHistory reports the per-user retention flag. Unknown users default
// to retained.
func (r *repo) KeepHistory(ctx context.Context, username string) (bool, error) {
	user := &entities.User{}
	err := r.GetDB().WithContext(ctx).Where("username = ?", username).First(user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return user.KeepHistory, nil
}
