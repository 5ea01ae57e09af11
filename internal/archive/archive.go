package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/handshape-backend/internal/engine"
)

// Recorder keeps finished games. Live session state is never persisted.
type Recorder interface {
	RecordGame(ctx context.Context, g engine.GameSummary) error
}

// Nop discards every game.
type Nop struct{}

func (Nop) RecordGame(context.Context, engine.GameSummary) error { return nil }

type GameRecord struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   string `gorm:"size:64;index"`
	TotalRounds int
	RoundsMade  int
	FinishedAt  time.Time
	Players     []PlayerRecord `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
}

type PlayerRecord struct {
	ID         uint   `gorm:"primaryKey"`
	GameID     uint   `gorm:"index"`
	PlayerID   string `gorm:"size:64"`
	Name       string `gorm:"size:64"`
	TotalScore int
	Rank       int
}

type GormRecorder struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to postgres and migrates the archive tables.
func Open(dsn string) (*GormRecorder, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return NewGormRecorder(db)
}

func NewGormRecorder(db *gorm.DB) (*GormRecorder, error) {
	if err := db.AutoMigrate(&GameRecord{}, &PlayerRecord{}); err != nil {
		return nil, fmt.Errorf("migrating archive: %w", err)
	}
	return &GormRecorder{db: db, now: time.Now}, nil
}

func (r *GormRecorder) RecordGame(ctx context.Context, g engine.GameSummary) error {
	rec := toRecord(g, r.now())
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("recording game %s: %w", g.SessionID, err)
	}
	return nil
}

func (r *GormRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(g engine.GameSummary, finished time.Time) GameRecord {
	rec := GameRecord{
		SessionID:   g.SessionID,
		TotalRounds: g.TotalRounds,
		RoundsMade:  len(g.Rounds),
		FinishedAt:  finished.UTC(),
		Players:     make([]PlayerRecord, 0, len(g.Final)),
	}
	for _, s := range g.Final {
		rec.Players = append(rec.Players, PlayerRecord{
			PlayerID:   s.PlayerID,
			Name:       s.PlayerName,
			TotalScore: s.TotalScore,
			Rank:       s.Rank,
		})
	}
	return rec
}
