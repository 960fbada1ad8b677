package main

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sherndon-labs/adventurecore/internal/agent"
	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/config"
	"github.com/sherndon-labs/adventurecore/internal/handlers"
	"github.com/sherndon-labs/adventurecore/internal/judge"
	"github.com/sherndon-labs/adventurecore/internal/ledger"
	"github.com/sherndon-labs/adventurecore/internal/orchestrator"
	"github.com/sherndon-labs/adventurecore/internal/phaseloop"
	"github.com/sherndon-labs/adventurecore/internal/proposal"
	"github.com/sherndon-labs/adventurecore/internal/responders"
	"github.com/sherndon-labs/adventurecore/internal/state"
	"github.com/sherndon-labs/adventurecore/internal/voting"
)

const busHistoryCapacity = 500

// runtime bundles every long-lived component one adventurecore process
// wires up, shared between `serve` and `dag run` so both subcommands build
// the default type handler registry the same way (`dag validate` only
// loads the config and needs no runtime).
type runtime struct {
	cfg *config.Config

	bus       *bus.Bus
	state     *state.Store
	ledger    *ledger.Ledger
	scheduler *ledger.Scheduler
	orch      *orchestrator.Manager
	llm       *responders.LLMResponder
	mcp       *responders.MCPResponder
	audio     *responders.AudioResponder

	snapshots state.SnapshotStore // nil when no Postgres DSN is configured
	pgPool    *pgxpool.Pool
}

// loadConfig resolves the settings file named by --config (if any) over
// the baked-in defaults, matching spec §6's layered-config story.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildRuntime wires every component named in the settings but does not
// start the story loop itself — that is `serve`'s job once a runtime is
// built.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	rt.bus = bus.New(busHistoryCapacity)
	rt.state = state.New(rt.bus)

	rt.ledger = ledger.New(cfg.TokenCaps)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rt.ledger.SetMirror(ledger.NewRedisMirror(client, ""))
	}
	rt.scheduler = ledger.NewScheduler()
	if cfg.LedgerResetCron != "" {
		if _, err := rt.scheduler.ScheduleReset(cfg.LedgerResetCron, rt.ledger, "", ""); err != nil {
			return nil, fmt.Errorf("scheduling ledger reset %q: %w", cfg.LedgerResetCron, err)
		}
	}
	rt.scheduler.Start()

	llmClients, err := buildLLMClients(cfg)
	if err != nil {
		return nil, err
	}
	rt.llm = responders.NewLLMResponder(rt.bus, llmClients, defaultProviderName(cfg), cfg.ExecutionTimeout())

	mcpClients, err := buildMCPClients(cfg)
	if err != nil {
		return nil, err
	}
	rt.mcp = responders.NewMCPResponder(rt.bus, mcpClients, cfg.ExecutionTimeout())

	rt.audio = responders.NewAudioResponder(rt.bus, responders.GorillaDialer{}, cfg.AudioServiceURL)

	rt.orch = orchestrator.New(rt.bus, rt.state, cfg.DAGConfigDir)
	registerDefaultHandlers(rt.orch, rt.bus, mcpClients)

	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		store := state.NewPostgresSnapshotStore(pool)
		if err := store.EnsureSchema(context.Background()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensuring story state snapshot schema: %w", err)
		}
		rt.pgPool = pool
		rt.snapshots = store
	}

	return rt, nil
}

// persistSnapshot best-effort saves the current Story State under
// adventureID. Failures are logged, not returned: persistence is a hook
// (spec §3), not load-bearing for the running process.
func (rt *runtime) persistSnapshot(ctx context.Context, adventureID string) {
	if rt.snapshots == nil {
		return
	}
	if err := state.Persist(ctx, rt.snapshots, adventureID, rt.state.Snapshot()); err != nil {
		log.Printf("adventurecore: snapshot persist failed: %v", err)
	}
}

// Close tears down the runtime's background goroutines. Responders don't
// need a graceful drain beyond Close (spec §5: handlers are timeout-bounded
// and finish or fail their own budget).
func (rt *runtime) Close() {
	rt.llm.Close()
	rt.mcp.Close()
	rt.audio.Close()
	rt.scheduler.Stop()
	if rt.pgPool != nil {
		rt.pgPool.Close()
	}
}

func defaultProviderName(cfg *config.Config) string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "claude"
	}
	return names[0]
}

// buildLLMClients constructs one LLMClient per configured provider.
//
// A non-mock LLMClient means a thin wrapper around a vendor SDK (spec
// §4.D: "implementations live outside this package"); no such wrapper
// ships in this module (see DESIGN.md), so MockLLM=false is refused here
// rather than silently falling back to the loopback fake.
func buildLLMClients(cfg *config.Config) (map[string]responders.LLMClient, error) {
	if !cfg.MockLLM {
		return nil, fmt.Errorf("mockLLM=false requires a vendor LLMClient implementation to be linked in; none ships in this module")
	}
	clients := make(map[string]responders.LLMClient, len(cfg.Providers))
	for name := range cfg.Providers {
		clients[name] = responders.NewLoopbackLLMClient(name)
	}
	return clients, nil
}

// buildMCPClients constructs one MCPClient per configured service name.
// See buildLLMClients: the same "no vendor wrapper ships here" reasoning
// applies to MCPServiceURLs.
func buildMCPClients(cfg *config.Config) (map[string]responders.MCPClient, error) {
	if !cfg.MockMCP {
		return nil, fmt.Errorf("mockMCP=false requires a vendor MCPClient implementation to be linked in; none ships in this module")
	}
	services := defaultMCPServices()
	for name := range cfg.MCPServiceURLs {
		services[name] = struct{}{}
	}
	clients := make(map[string]responders.MCPClient, len(services))
	for name := range services {
		clients[name] = responders.NewLoopbackMCPClient(name)
	}
	return clients, nil
}

// defaultMCPServices lists the services the default type handlers (system:
// scene-reset, and any DAG stage of type mcp:<service>) call regardless of
// what the settings file lists explicitly.
func defaultMCPServices() map[string]struct{} {
	return map[string]struct{}{
		"worldbuilder":  {},
		"worldsurveyor": {},
		"worldviewer":   {},
	}
}

// registerDefaultHandlers wires every spec §4.J default type handler into
// mgr, one mcp:<service> factory per known MCP service.
func registerDefaultHandlers(mgr *orchestrator.Manager, b *bus.Bus, mcpClients map[string]responders.MCPClient) {
	mgr.RegisterTypeHandler("llm", handlers.LLMFactory(b))
	mgr.RegisterTypeHandler("audio", handlers.AudioFactory(b))
	mgr.RegisterTypeHandler("competition", handlers.CompetitionFactory(b))
	mgr.RegisterTypeHandler("system:scene-reset", handlers.SceneResetFactory(b))
	mgr.RegisterTypeHandler("system:sleep", handlers.SleepFactory())
	mgr.RegisterTypeHandler("system:notify", handlers.NotifyFactory(b))
	mgr.RegisterTypeHandler("system:log", handlers.LogFactory())
	mgr.RegisterTypeHandler("noop", handlers.NoopFactory())
	for service := range mcpClients {
		mgr.RegisterTypeHandler("mcp:"+service, handlers.MCPFactory(b))
	}
}

// buildAgents constructs the MockAgent roster the story loop competes
// with (spec §4.D, §8 scenario 1). Refused for the same reason
// buildLLMClients refuses a non-mock provider map.
func buildAgents(cfg *config.Config) ([]agent.Agent, error) {
	if !cfg.MockLLM {
		return nil, fmt.Errorf("mockLLM=false requires vendor-backed agents to be linked in; none ship in this module")
	}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	agents := make([]agent.Agent, 0, len(names))
	for _, name := range names {
		agents = append(agents, agent.NewMockAgent(name, agent.TypeScene))
	}
	return agents, nil
}

// buildJudgePanel builds a four-judge panel (spec §8 scenario 1's
// tech/story/audience/visual split) from cfg.JudgeWeights, falling back to
// the scenario's literal weights when unset (Open Question #3).
func buildJudgePanel(cfg *config.Config) *judge.Panel {
	defaults := map[string]float64{"tech": 1.2, "story": 1.0, "audience": 1.0, "visual": 0.8}
	weights := cfg.JudgeWeights
	if weights == nil {
		weights = defaults
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	judges := make([]judge.Judge, 0, len(names))
	for _, name := range names {
		judges = append(judges, judge.NewRuleBasedJudge(name, name, weights[name], 0.5))
	}
	return judge.NewPanel(judges)
}

// buildStoryLoopDeps assembles phaseloop.Deps for one adventure run.
func buildStoryLoopDeps(rt *runtime) (phaseloop.Deps, error) {
	agents, err := buildAgents(rt.cfg)
	if err != nil {
		return phaseloop.Deps{}, err
	}

	proposalManager := proposal.NewManager(rt.bus, "competition:completed")
	votes := voting.New(rt.bus, rt.cfg.VotingCompleteEventName)
	panel := buildJudgePanel(rt.cfg)

	loopCfg := phaseloop.DefaultConfig()
	loopCfg.VotingDuration = rt.cfg.VotingDuration()
	loopCfg.ProposalTimeout = rt.cfg.ProposalTimeout()
	loopCfg.PresentationMode = string(rt.cfg.AudioMode)
	loopCfg.PresentationDurationMs = rt.cfg.PresentationDurationMs
	loopCfg.CleanupCountdown = rt.cfg.CleanupDuration()
	loopCfg.MCPTimeout = rt.cfg.ExecutionTimeout()
	loopCfg.AudioTimeout = rt.cfg.ExecutionTimeout()

	return phaseloop.Deps{
		Bus:                 rt.bus,
		State:               rt.state,
		Agents:              agents,
		ProposalManager:     proposalManager,
		CompletionEvent:     "competition:completed",
		JudgePanel:          panel,
		Votes:               votes,
		VotingCompleteEvent: rt.cfg.VotingCompleteEventName,
		Config:              loopCfg,
	}, nil
}
