package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ntars/tars/internal/agentloop"
	"github.com/ntars/tars/internal/brain"
	"github.com/ntars/tars/internal/bus"
	"github.com/ntars/tars/internal/comms"
	"github.com/ntars/tars/internal/config"
	"github.com/ntars/tars/internal/dispatcher"
	"github.com/ntars/tars/internal/killswitch"
	"github.com/ntars/tars/internal/mcp"
	"github.com/ntars/tars/internal/memory"
	"github.com/ntars/tars/internal/providers"
	"github.com/ntars/tars/internal/selfheal"
	"github.com/ntars/tars/internal/source"
	"github.com/ntars/tars/internal/specialists"
	"github.com/ntars/tars/internal/store"
	"github.com/ntars/tars/internal/streamparser"
	"github.com/ntars/tars/internal/supervisor"
	"github.com/ntars/tars/internal/tools"
	"github.com/ntars/tars/internal/tracing"
	"github.com/ntars/tars/internal/tunnel"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the TARS engine: intake, brain, specialist agents, and the optional relay tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.Engine.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	out := os.Stdout
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// runServe wires every module named in SPEC_FULL.md §4's package layout
// into one running engine: Event Bus, Memory Store, Comms Hub, Message
// Source Multiplexer/Sink, Stream Parser, first-party Tool Registry,
// specialist Agent Loops, the Brain, the Parallel Task Dispatcher, the
// Self-Heal Tracker, the optional OTel tracing bridge, and — when a relay
// URL is configured — the outbound Tunnel plus the local control server
// the Process Supervisor exposes.
func runServe() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	msgBus := bus.New()
	kill := killswitch.New()

	workspace := config.ExpandHome(cfg.Engine.WorkingDir)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create working dir: %w", err)
	}

	memDir := config.ExpandHome(cfg.Memory.BaseDir)
	memStore, err := memory.New(memDir)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	var mirror *store.Store
	if cfg.IsManagedMode() {
		mirror, err = store.Open(cfg.Database.PostgresDSN)
		if err != nil {
			slog.Warn("managed-mode Postgres mirror unavailable, continuing with flat-file memory only", "error", err)
		} else {
			defer mirror.Close()
			slog.Info("managed-mode Postgres mirror enabled")
		}
	}

	commsHub := comms.New()

	if cfg.Telemetry.Enabled {
		bridge, err := tracing.New(ctx, tracing.Config{
			Endpoint: cfg.Telemetry.Endpoint,
			Protocol: cfg.Telemetry.Protocol,
			Insecure: cfg.Telemetry.Insecure,
		})
		if err != nil {
			slog.Warn("tracing bridge unavailable, continuing without span export", "error", err)
		} else {
			bridge.Subscribe(msgBus)
			defer bridge.Shutdown(context.Background())
			slog.Info("tracing bridge enabled", "endpoint", cfg.Telemetry.Endpoint)
		}
	}

	brainProvider := providers.New(cfg.Brain.Provider, cfg.Brain.Model, cfg.Brain.BaseURL, cfg.Brain.APIKey)
	agentProvider := providers.New(cfg.Agent.Provider, cfg.Agent.Model, cfg.Agent.BaseURL, cfg.Agent.APIKey)

	if mirror != nil {
		subscribeMirror(msgBus, mirror)
	}

	// Sink delivers outbound text to the owner's channel; Send closes over
	// it so every layer (tools, dispatcher progress, self-heal) shares one
	// rate-limited, retrying delivery path (spec.md §4.7).
	sink := source.NewSink(cfg.Messaging.RateLimit, cfg.Messaging.MaxMessageLength, cfg.Messaging.ScriptBinary, nil)
	send := func(replySource, text string) {
		if err := sink.Send(ctx, text); err != nil {
			slog.Error("send failed", "source", replySource, "error", err)
		}
	}

	firstPartyTools := buildFirstPartyTools(cfg, workspace, memStore, commsHub, send)
	mcpManager := mcp.NewManager(firstPartyTools)
	mcpManager.Start(ctx, parseMCPServers(cfg.Tools.MCPServers))
	defer mcpManager.Stop()
	specs := buildSpecialists(cfg, workspace)

	brainFactory := func() *brain.Brain {
		return brain.New(brain.Config{
			BrainProvider:   brainProvider,
			BrainModel:      cfg.Brain.Model,
			AgentProvider:   agentProvider,
			AgentModel:      cfg.Agent.Model,
			MaxSteps:        cfg.Engine.BrainMaxSteps,
			Memory:          memStore,
			Comms:           commsHub,
			Bus:             msgBus,
			Kill:            kill,
			Specialists:     specs,
			FirstPartyTools: firstPartyTools,
			Send:            send,
		})
	}

	devAgent := func(ctx context.Context, task string) *agentloop.Result {
		return specs["coder"].Deploy(ctx, agentloop.Config{Provider: agentProvider, Model: cfg.Agent.Model, Kill: kill}, task)
	}
	healTracker := selfheal.New(selfheal.Config{
		SweepCron:   cfg.SelfHeal.SweepCron,
		Memory:      memStore,
		Send:        send,
		OwnerSource: cfg.Messaging.OwnerAddress,
		DevAgent:    devAgent,
	})
	healTracker.Start(ctx)
	defer healTracker.Stop()

	disp := dispatcher.New(dispatcher.Config{
		MaxParallel:      cfg.Engine.MaxParallelTasks,
		BrainFactory:     brainFactory,
		Bus:              msgBus,
		Kill:             kill,
		Send:             send,
		SelfHeal:         healTracker,
		ProgressInterval: cfg.IMessage.ProgressInterval,
	})

	parser := streamparser.New(cfg.Messaging.MergeWindow, func(batch streamparser.Batch) {
		disp.Dispatch(ctx, batch)
	})

	mux := source.New(source.Config{
		DatabasePath: config.ExpandHome(cfg.Messaging.DatabasePath),
		OwnerAddress: cfg.Messaging.OwnerAddress,
		PollInterval: cfg.Messaging.PollInterval,
		CLIBinary:    cfg.Messaging.CLIFallbackBinary,
	}, msgBus)
	if err := mux.Open(); err != nil {
		slog.Warn("message source unavailable, owner tasks can still arrive via the relay tunnel", "error", err)
	} else {
		defer mux.Close()
	}

	if cfg.Telegram.Enabled {
		tg, err := source.NewTelegramSource(source.TelegramConfig{Token: cfg.Telegram.Token})
		if err != nil {
			slog.Warn("telegram source unavailable", "error", err)
		} else {
			go func() {
				if err := tg.Run(ctx, mux); err != nil && ctx.Err() == nil {
					slog.Error("telegram long-poll stopped", "error", err)
				}
			}()
			slog.Info("telegram push source enabled")
		}
	}

	sup := supervisor.New(supervisor.Config{
		BinaryPath:  exeSelf(),
		ServeArgs:   []string{"serve"},
		ProcessName: filepath.Base(exeSelf()),
		MaxParallel: cfg.Engine.MaxParallelTasks,
		OnNotify:    func(text string) { send(cfg.Messaging.OwnerAddress, text) },
	})
	sup.TrackSelf()
	sup.SetActiveTasksFunc(disp.ActiveCount)

	pushFromRelay := func(text string) {
		mux.Push(bus.InboundMessage{Text: text, Source: bus.SourceDashboard, Timestamp: time.Now()})
	}
	relay := &supervisor.RelayHandler{
		Supervisor:  sup,
		PushTask:    pushFromRelay,
		PushMessage: pushFromRelay,
	}

	localSrv := supervisor.NewLocalServer(sup)
	go func() {
		if err := localSrv.Run(ctx, "127.0.0.1:4973"); err != nil && ctx.Err() == nil {
			slog.Error("local control server error", "error", err)
		}
	}()

	if cfg.Relay.URL != "" {
		tun := tunnel.New(tunnel.Config{URL: cfg.Relay.URL, Token: cfg.Relay.Token, Bus: msgBus, Handler: relay})
		go tun.Run(ctx)
		slog.Info("relay tunnel enabled", "url", cfg.Relay.URL)
	}

	go func() {
		sig := <-sigCh
		slog.Info("shutdown signal received", "signal", sig)
		parser.ForceFlush()
		cancel()
	}()

	slog.Info("tars serve starting",
		"version", Version,
		"brain", cfg.Brain.Provider+"/"+cfg.Brain.Model,
		"agent", cfg.Agent.Provider+"/"+cfg.Agent.Model,
		"specialists", specialistNames(specs),
		"max_parallel", cfg.Engine.MaxParallelTasks,
	)

	pollLoop(ctx, mux, cfg.Safety.KillWords, kill, parser, msgBus, cfg.Engine.KillGracePeriod, send, cfg.Messaging.OwnerAddress)
	disp.Wait()
	return nil
}

// pollLoop waits for inbound text from the Multiplexer, checks it against
// the kill switch, and feeds surviving text into the Stream Parser
// (spec.md §4.6/§4.7's poll → kill-check → parse pipeline). A kill word hit
// emits TopicKillSwitch (so the tracing bridge and any other subscriber see
// it), notifies the owner, and schedules kill.Clear() after gracePeriod —
// spec.md §8 Scenario 5's "kill-switch mid-task, then resume normal
// operation" path, rather than wedging every future task permanently.
func pollLoop(ctx context.Context, mux *source.Multiplexer, killWords []string, kill *killswitch.Switch, parser *streamparser.Parser, b *bus.Bus, gracePeriod time.Duration, send tools.SendFunc, owner string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		text, ok := mux.WaitForMessage(ctx, 2*time.Second)
		if !ok {
			continue
		}
		lowerText := strings.ToLower(text)
		killHit := ""
		for _, w := range killWords {
			if w != "" && strings.Contains(lowerText, strings.ToLower(w)) {
				killHit = w
				break
			}
		}
		if killHit != "" {
			triggerKillSwitch(kill, b, gracePeriod, send, owner, killHit)
			continue
		}
		parser.Ingest(text, "owner")
	}
}

// triggerKillSwitch trips kill, announces it on the bus and to the owner,
// and arms a one-shot timer that clears it again after gracePeriod.
func triggerKillSwitch(kill *killswitch.Switch, b *bus.Bus, gracePeriod time.Duration, send tools.SendFunc, owner, word string) {
	reason := "owner kill word: " + word
	kill.Set(reason)
	b.Emit(bus.TopicKillSwitch, map[string]interface{}{"reason": reason, "word": word, "cleared": false})
	if send != nil {
		send(owner, fmt.Sprintf("Kill switch tripped (%q); pausing for %s before resuming.", word, gracePeriod))
	}
	time.AfterFunc(gracePeriod, func() {
		kill.Clear()
		b.Emit(bus.TopicKillSwitch, map[string]interface{}{"reason": reason, "word": word, "cleared": true})
		if send != nil {
			send(owner, "Kill switch cleared; resuming normal operation.")
		}
	})
}

// subscribeMirror mirrors task lifecycle and tool-call events onto the
// optional managed-mode Postgres store, keyed off the task_id every
// Dispatcher/Brain event carries (spec.md §4.11/§4.12's action log).
func subscribeMirror(b *bus.Bus, mirror *store.Store) {
	ctx := context.Background()
	b.Subscribe(bus.TopicParallelTaskStarted, "store-mirror", func(e bus.Event) {
		taskID, _ := e.Payload["task_id"].(string)
		traceID, _ := e.Payload["trace_id"].(string)
		src, _ := e.Payload["source"].(string)
		batchType, _ := e.Payload["batch_type"].(string)
		if err := mirror.RecordTaskStarted(ctx, taskID, traceID, src, batchType); err != nil {
			slog.Warn("mirror: record task started failed", "task_id", taskID, "error", err)
		}
	})
	b.Subscribe(bus.TopicParallelTaskCompleted, "store-mirror", func(e bus.Event) {
		taskID, _ := e.Payload["task_id"].(string)
		reason, _ := e.Payload["reason"].(string)
		status := "error"
		if success, _ := e.Payload["success"].(bool); success {
			status = "done"
		} else if stuck, _ := e.Payload["stuck"].(bool); stuck {
			status = "stuck"
		}
		if err := mirror.RecordTaskCompleted(ctx, taskID, status, reason); err != nil {
			slog.Warn("mirror: record task completed failed", "task_id", taskID, "error", err)
		}
	})
	b.Subscribe(bus.TopicToolCalled, "store-mirror", func(e bus.Event) {
		taskID, _ := e.Payload["task_id"].(string)
		tool, _ := e.Payload["tool"].(string)
		agentName, _ := e.Payload["agent"].(string)
		if err := mirror.AppendAction(ctx, taskID, agentName, "called tool: "+tool); err != nil {
			slog.Warn("mirror: append action failed", "task_id", taskID, "error", err)
		}
	})
}

func exeSelf() string {
	exe, err := os.Executable()
	if err != nil {
		return "tarsd"
	}
	return exe
}

// parseMCPServers turns each "command arg1 arg2" config line into a
// mcp.ServerConfig, named after its command for logging.
func parseMCPServers(lines []string) []mcp.ServerConfig {
	var out []mcp.ServerConfig
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, mcp.ServerConfig{
			Name:    fields[0],
			Command: fields[0],
			Args:    fields[1:],
		})
	}
	return out
}

func specialistNames(specs map[string]*specialists.Spec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	return names
}

func buildFirstPartyTools(cfg *config.Config, workspace string, memStore *memory.Store, commsHub *comms.Hub, send tools.SendFunc) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(tools.NewSaveMemoryTool(memStore))
	reg.Register(tools.NewRecallMemoryTool(memStore))
	reg.Register(tools.NewListMemoryTool(memStore))
	reg.Register(tools.NewDeleteMemoryTool(memStore))
	reg.Register(tools.NewSendMessageTool(send))
	reg.Register(tools.NewReadFileTool(cfg.Safety.AllowedPaths))
	reg.Register(tools.NewWriteFileTool(cfg.Safety.AllowedPaths))
	reg.Register(tools.NewListDirTool(cfg.Safety.AllowedPaths))
	reg.Register(tools.NewWriteScratchpadTool(commsHub, "brain"))
	reg.Register(tools.NewReadScratchpadTool(commsHub))
	reg.Register(tools.NewExecTool(workspace))
	reg.Register(tools.NewOpenURLTool())
	reg.Register(tools.NewWebSearchTool())
	return reg
}

func buildSpecialists(cfg *config.Config, workspace string) map[string]*specialists.Spec {
	return map[string]*specialists.Spec{
		"browser":  specialists.NewBrowserSpec(),
		"coder":    specialists.NewCoderSpec(workspace, cfg.Safety.AllowedPaths),
		"file":     specialists.NewFileSpec(cfg.Safety.AllowedPaths),
		"research": specialists.NewResearchSpec(),
		"screen":   specialists.NewScreenSpec(cfg.Tools.ScreenTargetApp),
		"system":   specialists.NewSystemSpec(workspace),
	}
}
