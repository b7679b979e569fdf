package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vennwood/revenant/internal/agent"
	"github.com/vennwood/revenant/internal/auth"
	"github.com/vennwood/revenant/internal/core"
	"github.com/vennwood/revenant/internal/core/debug"
	"github.com/vennwood/revenant/internal/network"
	"github.com/vennwood/revenant/internal/protocol"
)

const defaultTickRate = 20

func run(c *cli.Context) error {
	cfg := core.LoadConfig(c.String("config"))
	fmt.Println("using configuration file:", c.String("config"))

	log, err := core.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	debug.StartUtilities(log)

	// Ctrl-C triggers a graceful stop: the agent sends a final movement stop
	// before the connections come down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	worldAddr, sessionKey, err := logon(ctx, log, cfg)
	if err != nil {
		return err
	}

	return runWorld(ctx, log, cfg, worldAddr, sessionKey)
}

// logon runs the auth-server exchange and returns the chosen realm's
// address and the negotiated session key. The logon connection is torn
// down before this returns; the protocol uses it only for the handshake.
func logon(ctx context.Context, log *zap.SugaredLogger, cfg *core.Config) (string, []byte, error) {
	prover, err := auth.NewPrecomputedProver(cfg.AuthServer.ProofHex, cfg.AuthServer.SessionKeyHex)
	if err != nil {
		return "", nil, fmt.Errorf("loading proof material: %w", err)
	}

	pipeline := network.NewPipeline(log)
	if err := pipeline.Connect(ctx, cfg.AuthAddress()); err != nil {
		return "", nil, fmt.Errorf("connecting to auth server: %w", err)
	}
	defer pipeline.Disconnect()

	session := auth.NewSession(log, pipeline, prover)
	if err := session.Authenticate(ctx, cfg.Username); err != nil {
		return "", nil, err
	}

	realms, err := session.Realms(ctx)
	if err != nil {
		return "", nil, err
	}

	return pickRealm(log, cfg, realms), session.SessionKey(), nil
}

// pickRealm selects the least loaded advertised realm, falling back to the
// configured world address when the list is empty.
func pickRealm(log *zap.SugaredLogger, cfg *core.Config, realms []auth.Realm) string {
	if len(realms) == 0 {
		log.Warnf("empty realm list, falling back to %s", cfg.WorldAddress())
		return cfg.WorldAddress()
	}

	best := realms[0]
	for _, realm := range realms[1:] {
		if realm.Load < best.Load {
			best = realm
		}
	}

	log.Infof("selected realm %s (%s)", best.Name, best.Address)
	return best.Address
}

func runWorld(ctx context.Context, log *zap.SugaredLogger, cfg *core.Config, addr string, sessionKey []byte) error {
	pipeline := network.NewPipeline(log)

	disconnected := make(chan struct{})
	pipeline.SetDisconnectHandler(func(error) { close(disconnected) })

	if err := pipeline.Connect(ctx, addr); err != nil {
		return fmt.Errorf("connecting to world server: %w", err)
	}
	defer pipeline.Disconnect()

	world := auth.NewWorldSession(log, pipeline, cfg.Username, sessionKey)
	if err := world.Authenticate(ctx); err != nil {
		return err
	}
	if err := pipeline.EnableEncryption(sessionKey); err != nil {
		return err
	}

	controller := agent.NewController(log, pipeline, &agent.KinematicStepper{}, tuningFromConfig(cfg))
	controller.SetMapID(cfg.WorldServer.MapID)

	clock := newGameClock()

	// Server-pushed teleports become corrections; the server expects an ack
	// echoing the packet before it resumes sending movement for the agent.
	pipeline.RegisterHandler(protocol.MoveTeleportType, func(payload []byte) {
		info, _, err := protocol.ParseMovementPayload(payload)
		if err != nil {
			log.Warnf("dropping unparseable teleport: %v", err)
			return
		}

		controller.PushCorrection(agent.Correction{Position: info.Position, Facing: info.Facing})
		if err := pipeline.Send(protocol.MoveTeleportAckType, payload); err != nil {
			log.Warnf("failed to ack teleport: %v", err)
		}
	})

	tickRate := cfg.Agent.TickRate
	if tickRate <= 0 {
		tickRate = defaultTickRate
	}
	interval := time.Second / time.Duration(tickRate)

	log.Infof("agent running at %d ticks/s", tickRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			controller.Update(interval.Seconds(), clock.nowMs())
		case <-disconnected:
			return fmt.Errorf("world connection lost")
		case <-ctx.Done():
			controller.SendStop(clock.nowMs())
			return nil
		}
	}
}

func tuningFromConfig(cfg *core.Config) agent.Tuning {
	tuning := agent.DefaultTuning()

	if cfg.Agent.HeartbeatIntervalMs > 0 {
		tuning.HeartbeatInterval = time.Duration(cfg.Agent.HeartbeatIntervalMs) * time.Millisecond
	}
	if cfg.Agent.TeleportThreshold > 0 {
		tuning.TeleportThreshold = cfg.Agent.TeleportThreshold
	}
	if cfg.Agent.StaleEpsilon > 0 {
		tuning.StaleEpsilon = cfg.Agent.StaleEpsilon
	}
	if cfg.Agent.StaleTickLimit > 0 {
		tuning.StaleTickLimit = cfg.Agent.StaleTickLimit
	}
	if cfg.Agent.SuppressionWindowMs > 0 {
		tuning.SuppressionWindow = time.Duration(cfg.Agent.SuppressionWindowMs) * time.Millisecond
	}
	if cfg.Agent.ArrivalRadius > 0 {
		tuning.ArrivalRadius = cfg.Agent.ArrivalRadius
	}

	return tuning
}

// gameClock is the millisecond game-time clock stamped into movement
// packets. Monotonic from session start, so timestamps never run backwards
// under wall-clock adjustments.
type gameClock struct {
	start time.Time
}

func newGameClock() *gameClock {
	return &gameClock{start: time.Now()}
}

func (g *gameClock) nowMs() uint32 {
	return uint32(time.Since(g.start).Milliseconds())
}
