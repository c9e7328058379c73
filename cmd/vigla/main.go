package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/vigla/internal/config"
	"github.com/mtzanidakis/vigla/internal/datadog"
	"github.com/mtzanidakis/vigla/internal/natsbus"
	"github.com/mtzanidakis/vigla/internal/reasoning"
	"github.com/mtzanidakis/vigla/internal/report"
	"github.com/mtzanidakis/vigla/internal/reportstore"
	"github.com/mtzanidakis/vigla/internal/scheduler"
	"github.com/mtzanidakis/vigla/internal/servicenow"
	"github.com/mtzanidakis/vigla/internal/store"
	"github.com/mtzanidakis/vigla/internal/swarm"
	"github.com/mtzanidakis/vigla/internal/telegram"
	"github.com/mtzanidakis/vigla/internal/vault"
	"github.com/mtzanidakis/vigla/internal/web"
	"github.com/mtzanidakis/vigla/internal/workflow"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("vigla %s\n", version)
	case "daemon":
		if err := runDaemon(); err != nil {
			slog.Error("daemon failed", "error", err)
			os.Exit(1)
		}
	case "run":
		if err := runOnce(); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
	case "vault":
		if err := runVault(os.Args[2:]); err != nil {
			slog.Error("vault command failed", "error", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			slog.Error("backup failed", "error", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			slog.Error("restore failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: vigla <command>

Commands:
  daemon     Start the vigla service (scheduler, web API, event bus)
  run        Execute a single scan and exit
  vault      Manage encrypted collaborator secrets
  backup     Archive the data directory to a .tar.zst file
  restore    Restore a data directory archive
  version    Print version
`)
}

// services holds everything a run needs, plus the infrastructure the
// daemon keeps alive between runs.
type services struct {
	cfg    *config.Config
	db     *store.Store
	bus    *natsbus.Bus
	events *natsbus.Client
	runner *workflow.Runner
	repos  *reportstore.Store
	vlt    *vault.Vault
}

func (s *services) close() {
	if s.events != nil {
		s.events.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

func setup() (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	slog.Info("store initialized", "path", cfg.Store.Path)

	svc := &services{cfg: cfg, db: db}

	// Secrets: "secret:NAME" credential references resolve against the
	// vault-encrypted store when a passphrase is present.
	if pass := os.Getenv("VIGLA_VAULT_PASSPHRASE"); pass != "" {
		svc.vlt = vault.New(pass)
		cfg.ResolveSecrets(func(name string) (string, bool) {
			sec, err := db.GetSecret(name)
			if err != nil || sec == nil {
				return "", false
			}
			plain, err := svc.vlt.Decrypt(sec.Value, sec.Nonce)
			if err != nil {
				slog.Warn("secret decryption failed", "name", name, "error", err)
				return "", false
			}
			return string(plain), true
		})
	}

	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("init nats: %w", err)
	}
	svc.bus = bus
	slog.Info("nats started", "port", cfg.NATS.Port)

	events, err := natsbus.NewClient(bus)
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("nats client: %w", err)
	}
	svc.events = events

	repos, err := reportstore.New(events)
	if err != nil {
		svc.close()
		return nil, fmt.Errorf("init report store: %w", err)
	}
	svc.repos = repos

	dd := datadog.New(cfg.Datadog)
	reasoner := reasoning.New(cfg.Reasoning)
	snow := servicenow.New(cfg.ServiceNow)

	roster := swarm.NewRoster(dd, reasoner, snow, repos, report.Service)
	limits := swarm.Limits{
		MaxIterations:    cfg.Workflow.MaxIterations,
		MaxHandoffs:      cfg.Workflow.MaxHandoffs,
		NodeTimeout:      cfg.Workflow.NodeTimeout,
		ExecutionTimeout: cfg.Workflow.ExecutionTimeout,
		TicketThreshold:  swarm.ParseSeverity(cfg.Workflow.TicketSeverity),
	}
	coord := swarm.NewCoordinator(roster, limits, cfg.Workflow.MaxWorkers)

	var notifier workflow.Notifier
	if cfg.Telegram.Token != "" {
		tg, err := telegram.NewNotifier(cfg.Telegram)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("init telegram: %w", err)
		}
		notifier = tg
		slog.Info("telegram notifier enabled", "chat", cfg.Telegram.ChatID)
	}

	svc.runner = workflow.New(dd, coord, repos, db, events, notifier, cfg.Workflow)
	return svc, nil
}

func runDaemon() error {
	slog.Info("starting vigla daemon", "version", version)

	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if svc.cfg.Scheduler.Enabled {
		sched, err := scheduler.New(svc.runner, svc.cfg.Scheduler)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		go sched.Start(ctx)
		slog.Info("scheduler started", "schedule", svc.cfg.Scheduler.Schedule)
	}

	if svc.cfg.Web.Enabled {
		srv := web.NewServer(svc.db, svc.bus, svc.runner, svc.repos, svc.vlt, svc.cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}

func runOnce() error {
	svc, err := setup()
	if err != nil {
		return err
	}
	defer svc.close()

	out, err := svc.runner.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Print(out.Summary.Markdown(out.StartedAt, out.WindowFrom, out.WindowTo, out.Elapsed))
	if out.PersistErr != "" {
		return fmt.Errorf("summary persistence: %s", out.PersistErr)
	}
	return nil
}
