package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
)

type Log struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEV" envDefault:"false"`
}

// Game holds the match rules every peer starts with.
type Game struct {
	TimeToWin          time.Duration `env:"TIME_TO_WIN" envDefault:"20s"`
	InvincibleDuration time.Duration `env:"INVINCIBLE_DURATION" envDefault:"1s"`
	TeardownDelay      time.Duration `env:"TEARDOWN_DELAY" envDefault:"3s"`
	TickRate           int           `env:"TICK_RATE" envDefault:"50"`
	ReplicateEvery     int           `env:"REPLICATE_EVERY" envDefault:"5"`
	SpawnPoints        []engine.Vec3 `env:"SPAWN_POINTS" envSeparator:";" envDefault:"-5,1,-5;5,1,-5;-5,1,5;5,1,5"`
}

type Server struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RoomBuffer  int    `env:"ROOM_BUFFER" envDefault:"128"`
	Log         Log
}

type Peer struct {
	RelayURL    string        `env:"RELAY_URL" envDefault:"ws://localhost:8080/ws"`
	RoomCode    string        `env:"ROOM_CODE"`
	PlayerName  string        `env:"PLAYER_NAME"`
	MinPlayers  int           `env:"MIN_PLAYERS" envDefault:"2"`
	BotInterval time.Duration `env:"BOT_INTERVAL" envDefault:"0s"`
	Buffer      int           `env:"PEER_BUFFER" envDefault:"128"`
	Game        Game
	Log         Log
}

// Load reads an optional .env file and then the process environment into target.
func Load(target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (g Game) Rules() engine.Rules {
	return engine.Rules{TimeToWin: g.TimeToWin, InvincibleDuration: g.InvincibleDuration}
}

func (g Game) Validate() error {
	var err error
	err = multierr.Append(err, g.Rules().Validate())
	if len(g.SpawnPoints) == 0 {
		err = multierr.Append(err, engine.ErrNoSpawnPoints)
	}
	if g.TickRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("tick rate must be positive, got %d", g.TickRate))
	}
	if g.ReplicateEvery <= 0 {
		err = multierr.Append(err, fmt.Errorf("replicate every must be positive, got %d", g.ReplicateEvery))
	}
	if g.TeardownDelay < 0 {
		err = multierr.Append(err, fmt.Errorf("teardown delay must not be negative"))
	}
	return err
}

func (s Server) Validate() error {
	var err error
	if s.HTTPAddr == "" {
		err = multierr.Append(err, fmt.Errorf("HTTP_ADDR is empty"))
	}
	if s.RoomBuffer <= 0 {
		err = multierr.Append(err, fmt.Errorf("room buffer must be positive, got %d", s.RoomBuffer))
	}
	return err
}

func (p Peer) Validate() error {
	var err error
	if p.RoomCode == "" {
		err = multierr.Append(err, fmt.Errorf("ROOM_CODE is empty"))
	}
	if p.MinPlayers <= 0 {
		err = multierr.Append(err, fmt.Errorf("min players must be positive, got %d", p.MinPlayers))
	}
	return multierr.Append(err, p.Game.Validate())
}
