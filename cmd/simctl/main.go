// simctl runs the virtual-office simulation as a local MCP server: one
// process owns the State Store and every manager, and exposes the admin
// control surface (start/advance/reset/rewind/inject-event/...) as MCP
// tools over stdio. Mirrors the teacher's cmd/mcp-server/main.go shape,
// scoped down to this domain: no worker-manager/worktree/knowledge-indexer
// equivalents, since nothing here shells out to an external coding agent.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/config"
	"github.com/nemit0/virtualoffice-sim/internal/engine"
	"github.com/nemit0/virtualoffice-sim/internal/engine/comm"
	"github.com/nemit0/virtualoffice-sim/internal/engine/event"
	"github.com/nemit0/virtualoffice-sim/internal/engine/notify"
	"github.com/nemit0/virtualoffice-sim/internal/engine/planner"
	"github.com/nemit0/virtualoffice-sim/internal/engine/project"
	"github.com/nemit0/virtualoffice-sim/internal/engine/runtime"
	"github.com/nemit0/virtualoffice-sim/internal/engine/tickmgr"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
	"github.com/nemit0/virtualoffice-sim/internal/store"
	admintools "github.com/nemit0/virtualoffice-sim/internal/tools/admin"
)

func main() {
	logger := log.New(os.Stderr, "[simctl] ", log.LstdFlags)
	cfg := config.FromEnv()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatalf("open state store %s: %v", cfg.DBPath, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Printf("warning: close state store: %v", err)
		}
	}()

	loc, err := locale.New(cfg.Locale, cfg.LocaleOverridePath)
	if err != nil {
		logger.Fatalf("load locale %s: %v", cfg.Locale, err)
	}

	if err := seedPersonas(st, cfg, logger); err != nil {
		logger.Fatalf("seed personas: %v", err)
	}

	tick := tickmgr.New(cfg.HoursPerDay, logger)
	tick.SetBaseTime(time.Now())

	rt := runtime.New(st)
	proj := project.New(st, logger)
	events := event.New(st, loc, 1)

	emailGW, chatGW := buildCommGateways(cfg, logger)
	hub := comm.New(emailGW, chatGW, st, loc, cfg.ContactCooldownTicks, cfg.ExternalStakeholders)

	llmGW := buildLLMGateway(cfg, logger)
	svc := planner.NewService(llmGW, cfg.PlannerStrict)
	orch := planner.New(st, hub, svc)

	eng := engine.New(st, tick, rt, proj, events, orch, hub, emailGW, chatGW, loc, logger, engine.Config{
		HoursPerDay:             cfg.HoursPerDay,
		TickIntervalSeconds:     int(cfg.TickIntervalSeconds),
		ContactCooldownTicks:    cfg.ContactCooldownTicks,
		MaxHourlyPlansPerMinute: cfg.MaxHourlyPlansPerMinute,
		MaxPlanningWorkers:      cfg.MaxPlanningWorkers,
		PlannerStrict:           cfg.PlannerStrict,
		AutoPauseOnProjectEnd:   cfg.AutoPauseOnProjectEnd,
		Locale:                  cfg.Locale,
		ExternalStakeholders:    cfg.ExternalStakeholders,
		SimManagerEmail:         cfg.SimManagerEmail,
		SimManagerHandle:        cfg.SimManagerHandle,
	})

	mcpServer := server.NewMCPServer(
		"virtualoffice-simctl",
		"1.0.0",
		server.WithResourceCapabilities(false, true),
	)
	admintools.Register(mcpServer, eng, logger, admintools.WithAutoTickControl())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	watcher := notify.New([]string{cfg.DBPath + "-wal"}, func() {
		logger.Println("state store changed")
	}, logger)
	go watcher.Start(ctx)

	logger.Println("simctl ready, serving MCP over stdio")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("stdio server error: %v", err)
	}

	watcher.Stop()
	logger.Println("simctl stopped")
}

// seedPersonas loads cfg.PersonaSeedPath and creates every persona in it,
// but only when the store has no personas at all, so repeated restarts
// against the same database stay idempotent, matching app.py's
// seed-on-first-run behavior.
func seedPersonas(st *store.Store, cfg config.Configuration, logger *log.Logger) error {
	if cfg.PersonaSeedPath == "" {
		return nil
	}
	existing, err := st.ListPersonas()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	personas, err := config.LoadPersonaSeed(cfg.PersonaSeedPath)
	if err != nil {
		return err
	}
	for _, p := range personas {
		if _, err := st.CreatePersona(p); err != nil {
			return err
		}
	}
	logger.Printf("seeded %d personas from %s", len(personas), cfg.PersonaSeedPath)
	return nil
}

// buildLLMGateway picks the HTTP-backed LLM gateway when an endpoint is
// configured, falling back to a logging stub otherwise, so the server still
// starts (and personas still "respond", just with stub text) without a
// provider wired up.
func buildLLMGateway(cfg config.Configuration, logger *log.Logger) gateway.LLMGateway {
	if base := os.Getenv("LLM_BASE_URL"); base != "" {
		return &gateway.HTTPLLMGateway{
			BaseURL: base,
			APIKey:  os.Getenv("LLM_API_KEY"),
			Client:  &http.Client{Timeout: 60 * time.Second},
		}
	}
	return &gateway.LoggingLLMGateway{Logger: logger}
}

// buildCommGateways wires the email/chat backends the same way: HTTP
// adapters when base URLs are configured, logging stand-ins otherwise.
func buildCommGateways(cfg config.Configuration, logger *log.Logger) (gateway.EmailGateway, gateway.ChatGateway) {
	var email gateway.EmailGateway
	if base := os.Getenv("EMAIL_BASE_URL"); base != "" {
		email = &gateway.HTTPEmailGateway{BaseURL: base, APIKey: os.Getenv("EMAIL_API_KEY")}
	} else {
		email = &gateway.LoggingEmailGateway{Logger: logger}
	}

	var chat gateway.ChatGateway
	if base := os.Getenv("CHAT_BASE_URL"); base != "" {
		chat = &gateway.HTTPChatGateway{BaseURL: base, APIKey: os.Getenv("CHAT_API_KEY")}
	} else {
		chat = &gateway.LoggingChatGateway{Logger: logger}
	}

	return email, chat
}
