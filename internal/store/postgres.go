package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type resultRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Room       string    `gorm:"size:16;index"`
	WinnerID   int
	WinnerName string
	EndedAt    time.Time        `gorm:"index"`
	Standings  []standingRecord `gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
}

func (resultRecord) TableName() string { return "match_results" }

type standingRecord struct {
	ID       uint      `gorm:"primaryKey"`
	ResultID uuid.UUID `gorm:"type:uuid;index"`
	PlayerID int
	Name     string
	HeldNs   int64
}

func (standingRecord) TableName() string { return "match_standings" }

type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the result tables.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&resultRecord{}, &standingRecord{}); err != nil {
		return nil, fmt.Errorf("migrate results: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveResult(ctx context.Context, res Result) (Result, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	rec := toRecord(res)
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Result{}, fmt.Errorf("save result: %w", err)
	}
	return res, nil
}

func (p *Postgres) GetResult(ctx context.Context, id uuid.UUID) (Result, error) {
	var rec resultRecord
	err := p.db.WithContext(ctx).
		Preload("Standings", func(db *gorm.DB) *gorm.DB { return db.Order("player_id") }).
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("get result: %w", err)
	}
	return fromRecord(rec), nil
}

func (p *Postgres) RecentResults(ctx context.Context, limit int) ([]Result, error) {
	var recs []resultRecord
	err := p.db.WithContext(ctx).
		Preload("Standings", func(db *gorm.DB) *gorm.DB { return db.Order("player_id") }).
		Order("ended_at desc").
		Limit(clampLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	out := make([]Result, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(res Result) resultRecord {
	rec := resultRecord{
		ID:         res.ID,
		Room:       res.Room,
		WinnerID:   res.WinnerID,
		WinnerName: res.WinnerName,
		EndedAt:    res.EndedAt,
	}
	for _, s := range res.Standings {
		rec.Standings = append(rec.Standings, standingRecord{
			ResultID: res.ID,
			PlayerID: s.PlayerID,
			Name:     s.Name,
			HeldNs:   int64(s.Held),
		})
	}
	return rec
}

func fromRecord(rec resultRecord) Result {
	res := Result{
		ID:         rec.ID,
		Room:       rec.Room,
		WinnerID:   rec.WinnerID,
		WinnerName: rec.WinnerName,
		EndedAt:    rec.EndedAt,
	}
	for _, s := range rec.Standings {
		res.Standings = append(res.Standings, Standing{
			PlayerID: s.PlayerID,
			Name:     s.Name,
			Held:     time.Duration(s.HeldNs),
		})
	}
	return res
}
