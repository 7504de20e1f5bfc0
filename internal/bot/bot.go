// Package bot drives a headless peer. With no physics, "touching" the holder
// is a coin flip on every step while the local player is chasing.
package bot

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/match"
)

// Player is the slice of match.Match the bot needs.
type Player interface {
	View(ctx context.Context) (match.View, error)
	TryTransfer(requester, touched engine.PlayerID)
}

type Options struct {
	Every  time.Duration
	Chance float64 // probability of a touch per step, 0 means always
	Clock  clockwork.Clock
	Rand   *rand.Rand
	Logger *zap.Logger
}

type Bot struct {
	player Player
	opts   Options
	log    *zap.Logger
}

func New(player Player, opts Options) *Bot {
	if opts.Every <= 0 {
		opts.Every = 500 * time.Millisecond
	}
	if opts.Chance <= 0 || opts.Chance > 1 {
		opts.Chance = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Bot{player: player, opts: opts, log: opts.Logger}
}

// Run steps until ctx is cancelled or the match closes.
func (b *Bot) Run(ctx context.Context) error {
	t := b.opts.Clock.NewTicker(b.opts.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			if _, err := b.Step(ctx); err != nil {
				if errors.Is(err, match.ErrClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

// Step reports whether a touch was sent.
func (b *Bot) Step(ctx context.Context) (bool, error) {
	v, err := b.player.View(ctx)
	if err != nil {
		return false, err
	}
	holder := v.CurrentHolder()
	switch {
	case !v.Spawned(), v.GameEnded(), holder == engine.NoPlayer:
		return false, nil
	case v.IsHolder(v.LocalID):
		return false, nil
	}
	if b.opts.Rand.Float64() >= b.opts.Chance {
		return false, nil
	}
	b.log.Debug("touching holder", zap.Int("holder", int(holder)))
	b.player.TryTransfer(v.LocalID, holder)
	return true, nil
}
