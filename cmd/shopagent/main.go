// Binary shopagent serves the BetterSale customer service agent over HTTP.
//
// Usage:
//
//	shopagent [flags]
//
// Flags:
//
//	-config     path to YAML config file (default: shopagent.yaml)
//	-addr       listen address, overrides server.addr
//	-init-db    create tables and seed demo data, then exit
//	-reset-db   drop all data and reseed, then exit
//	-log-level  overrides log.level
//
// A .env file in the working directory is loaded before the config so that
// ${GOOGLE_API_KEY} style references resolve.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/agent"
	"github.com/bitop-dev/shopagent/pkg/ai"
	"github.com/bitop-dev/shopagent/pkg/ai/providers/bedrock"
	"github.com/bitop-dev/shopagent/pkg/ai/providers/google"
	"github.com/bitop-dev/shopagent/pkg/ai/providers/openai"
	"github.com/bitop-dev/shopagent/pkg/prompts"
	"github.com/bitop-dev/shopagent/pkg/server"
	"github.com/bitop-dev/shopagent/pkg/session"
	"github.com/bitop-dev/shopagent/pkg/store"
	"github.com/bitop-dev/shopagent/pkg/tools"
	"github.com/bitop-dev/shopagent/pkg/tools/shop"
)

func main() {
	configPath := flag.String("config", "shopagent.yaml", "path to config file")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	initDB := flag.Bool("init-db", false, "create tables and seed demo data, then exit")
	resetDB := flag.Bool("reset-db", false, "drop all data and reseed, then exit")
	logLevel := flag.String("log-level", "", "log level (overrides log.level)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fatalf("load .env: %v", err)
	}

	cfg, err := agent.LoadFileConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Store ────────────────────────────────────────────────────────────
	st, err := store.Open(store.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.Database.Debug,
	}, store.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer st.Close()

	if err := prepareStore(ctx, st, *resetDB, log); err != nil {
		log.WithError(err).Fatal("prepare database")
	}
	if *initDB || *resetDB {
		log.Info("database ready")
		return
	}

	// ── Agent ────────────────────────────────────────────────────────────
	provider, err := buildProvider(cfg)
	if err != nil {
		log.WithError(err).Fatal("build provider")
	}
	if cfg.APIKey == "" && cfg.Provider == "google" {
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}

	instruction := prompts.Default()
	if cfg.Instruction != "" {
		if instruction, err = prompts.Load(cfg.Instruction); err != nil {
			log.WithError(err).Fatal("load instruction")
		}
	}

	registry := tools.NewRegistry()
	shop.Register(registry, st, log)

	var sessions session.Service = session.NewMemory()
	if cfg.Server.SessionsDir != "" {
		sessions = session.NewFileService(cfg.Server.SessionsDir)
	}

	srv := server.New(server.Options{
		AppName:     cfg.AppName,
		Model:       cfg.Model,
		Provider:    provider,
		Tools:       registry,
		Sessions:    sessions,
		Profiles:    st,
		Instruction: instruction,
		Loop:        cfg.LoopConfig(),
		AuthToken:   cfg.Server.AuthToken,
		Log:         log,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.Server.Addr,
			"app":      cfg.AppName,
			"provider": cfg.Provider,
			"model":    cfg.Model,
			"tools":    registry.Len(),
			"auth":     cfg.Server.AuthToken != "",
		}).Info("starting server")
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown")
		}
	}
}

// prepareStore creates the tables and seeds the demo data on an empty
// database, or on every start when reset is set.
func prepareStore(ctx context.Context, st *store.Store, reset bool, log logrus.FieldLogger) error {
	if reset {
		if err := st.Reset(ctx); err != nil {
			return err
		}
	}
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	empty, err := st.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	log.Info("database is empty, seeding demo data")
	return st.SeedDemo(ctx, false)
}

func buildProvider(cfg *agent.FileConfig) (ai.Provider, error) {
	switch cfg.Provider {
	// ── Google Gemini ──────────────────────────────────────────────────────
	case "google":
		return google.New(cfg.BaseURL), nil

	// ── OpenAI and compatible gateways ─────────────────────────────────────
	case "openai":
		return openai.New(cfg.BaseURL), nil

	// ── Amazon Bedrock ─────────────────────────────────────────────────────
	case "bedrock":
		return bedrock.New(cfg.Region, cfg.Profile), nil
	}
	return nil, errors.Errorf("unknown provider %q", cfg.Provider)
}

func newLogger(c agent.LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.Out = os.Stdout
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	log.Level = level
	if c.Format == "json" {
		log.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	return log, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
