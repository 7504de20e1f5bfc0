// Command peer is a headless player: it joins a relay room, plays one match
// and logs what a UI would show.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/hat-tag-backend/internal/bot"
	"github.com/DoyleJ11/hat-tag-backend/internal/config"
	"github.com/DoyleJ11/hat-tag-backend/internal/logging"
	"github.com/DoyleJ11/hat-tag-backend/internal/match"
	"github.com/DoyleJ11/hat-tag-backend/internal/transport"
)

const statusEvery = 2 * time.Second

func main() {
	var cfg config.Peer
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("bad config", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("peer stopped", zap.Error(err))
	}
}

func run(cfg config.Peer, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	net, err := transport.Dial(ctx, cfg.RelayURL, cfg.RoomCode, cfg.PlayerName, cfg.Buffer, log)
	if err != nil {
		return err
	}
	defer net.Close()
	log = log.With(zap.Int("actor", int(net.LocalActorID())), zap.String("room", cfg.RoomCode))

	if err := waitForPlayers(ctx, net, cfg.MinPlayers, log); err != nil {
		return err
	}

	finished := make(chan match.View, 1)
	m, err := match.New(ctx, net, match.Options{
		Rules:           cfg.Game.Rules(),
		ExpectedPlayers: cfg.MinPlayers,
		SpawnPoints:     cfg.Game.SpawnPoints,
		TickRate:        cfg.Game.TickRate,
		ReplicateEvery:  cfg.Game.ReplicateEvery,
		TeardownDelay:   cfg.Game.TeardownDelay,
		Logger:          log,
		OnTeardown:      func(v match.View) { finished <- v },
	})
	if err != nil {
		return err
	}
	defer m.Close()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.BotInterval > 0 {
		b := bot.New(m, bot.Options{Every: cfg.BotInterval, Chance: 0.3, Logger: log})
		g.Go(func() error { return b.Run(gctx) })
	}
	g.Go(func() error { return report(gctx, m, log) })
	g.Go(func() error {
		select {
		case v := <-finished:
			log.Info(v.WinText, zap.Duration("time_to_win", v.TimeToWin))
			return errMatchOver
		case <-m.Done():
			return errMatchOver
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errMatchOver) {
		return err
	}
	return nil
}

var errMatchOver = errors.New("match over")

// waitForPlayers holds the scene load until enough actors have joined, the
// way a lobby start button would. Every peer in a room must agree on want.
func waitForPlayers(ctx context.Context, net *transport.WS, want int, log *zap.Logger) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		if n := len(net.PlayerRoster()); n >= want {
			log.Info("starting match", zap.Int("players", n))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func report(ctx context.Context, m *match.Match, log *zap.Logger) error {
	t := time.NewTicker(statusEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		v, err := m.View(ctx)
		if err != nil {
			if errors.Is(err, match.ErrClosed) {
				return nil
			}
			return err
		}
		fields := []zap.Field{
			zap.Int("holder", int(v.CurrentHolder())),
			zap.Bool("holding", v.IsHolder(v.LocalID)),
			zap.Int("ready", v.Ready),
			zap.Int("expected", v.Expected),
		}
		for _, p := range v.Players {
			fields = append(fields, zap.Duration(p.Name, v.AccumulatedHoldTime(p.ID)))
		}
		log.Info("status", fields...)
	}
}
