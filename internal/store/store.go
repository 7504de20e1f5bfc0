// Package store keeps finished match results.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("result not found")

type Standing struct {
	PlayerID int           `json:"player_id"`
	Name     string        `json:"name"`
	Held     time.Duration `json:"held_ns"`
}

type Result struct {
	ID         uuid.UUID  `json:"id"`
	Room       string     `json:"room"`
	WinnerID   int        `json:"winner_id"`
	WinnerName string     `json:"winner_name"`
	EndedAt    time.Time  `json:"ended_at"`
	Standings  []Standing `json:"standings"`
}

type ResultStore interface {
	SaveResult(ctx context.Context, res Result) (Result, error)
	GetResult(ctx context.Context, id uuid.UUID) (Result, error)
	RecentResults(ctx context.Context, limit int) ([]Result, error)
}

const DefaultLimit = 20

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return DefaultLimit
	}
	return limit
}
