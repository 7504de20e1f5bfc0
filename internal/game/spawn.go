package game

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/DoyleJ11/hat-tag-backend/internal/engine"
	"github.com/DoyleJ11/hat-tag-backend/internal/presence"
	"github.com/DoyleJ11/hat-tag-backend/internal/protocol"
)

// FirstHolder always starts with the hat.
const FirstHolder engine.PlayerID = 1

// SpawnCoordinator gates spawning on every expected actor being present.
type SpawnCoordinator struct {
	session  *engine.Session
	players  *engine.Registry
	presence *presence.Directory
	hat      *HatAuthority
	net      Network
	rng      *rand.Rand
	points   []engine.Vec3
	spawned  bool
	log      *zap.Logger
}

func NewSpawnCoordinator(
	s *engine.Session,
	reg *engine.Registry,
	dir *presence.Directory,
	hat *HatAuthority,
	net Network,
	rng *rand.Rand,
	points []engine.Vec3,
	log *zap.Logger,
) (*SpawnCoordinator, error) {
	if len(points) == 0 {
		return nil, engine.ErrNoSpawnPoints
	}
	if rng == nil {
		return nil, fmt.Errorf("spawn coordinator: nil rng")
	}
	return &SpawnCoordinator{
		session:  s,
		players:  reg,
		presence: dir,
		hat:      hat,
		net:      net,
		rng:      rng,
		points:   append([]engine.Vec3(nil), points...),
		log:      log.Named("spawn"),
	}, nil
}

// AnnounceReady tells every peer, including late joiners, that we are in the scene.
func (c *SpawnCoordinator) AnnounceReady() error {
	id := c.net.LocalActorID()
	return c.net.SendReliable(protocol.ToAllBuffered, protocol.KindReady, protocol.Ready{ActorID: id})
}

// MarkReady counts a readiness signal from the relay-stamped sender. The
// authority spawns once the last distinct actor arrives.
func (c *SpawnCoordinator) MarkReady(from engine.PlayerID) {
	if !c.presence.MarkReady(from) {
		return
	}
	c.log.Debug("actor ready",
		zap.Int("actor", int(from)),
		zap.Int("ready", c.presence.Count()),
		zap.Int("expected", c.presence.Expected()))

	if !c.presence.Complete() || c.spawned || !c.net.IsAuthorityPeer() {
		return
	}
	if err := c.SpawnPlayers(); err != nil {
		c.log.Error("spawn players", zap.Error(err))
	}
}

func (c *SpawnCoordinator) Spawned() bool { return c.spawned }

// SpawnPlayers creates one player per ready actor at a random spawn point.
func (c *SpawnCoordinator) SpawnPlayers() error {
	if c.spawned {
		return nil
	}
	c.spawned = true

	names := make(map[engine.PlayerID]string)
	for _, m := range c.net.PlayerRoster() {
		names[m.ID] = m.Name
	}
	for _, id := range c.presence.Ready() {
		point := c.points[c.rng.IntN(len(c.points))]
		msg := protocol.Initialize{ActorID: id, Name: names[id], Spawn: point}
		if err := c.net.SendReliable(protocol.ToAllBuffered, protocol.KindInitialize, msg); err != nil {
			return fmt.Errorf("initialize actor %d: %w", id, err)
		}
	}
	c.log.Info("players spawned", zap.Int("count", c.presence.Count()))
	return nil
}

// Initialize registers a spawned player. Redelivered initializations are ignored.
func (c *SpawnCoordinator) Initialize(from engine.PlayerID, msg protocol.Initialize) error {
	if from != c.net.AuthorityID() {
		return engine.ErrUntrustedSender
	}
	c.spawned = true
	if _, ok := c.players.Get(msg.ActorID); ok {
		return nil
	}

	name := msg.Name
	if name == "" {
		name = fmt.Sprintf("Player %d", msg.ActorID)
	}
	c.players.Register(&engine.Player{
		ID:          msg.ActorID,
		DisplayName: name,
		IsLocal:     msg.ActorID == c.net.LocalActorID(),
		Spawn:       msg.Spawn,
	})

	if msg.ActorID == FirstHolder {
		return c.hat.InitialGrant(msg.ActorID)
	}
	return nil
}
