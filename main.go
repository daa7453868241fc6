package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sealor/pharmacy-agent/pkg/agent"
	"github.com/sealor/pharmacy-agent/pkg/chat"
	"github.com/sealor/pharmacy-agent/pkg/config"
	"github.com/sealor/pharmacy-agent/pkg/eval"
	"github.com/sealor/pharmacy-agent/pkg/logging"
	"github.com/sealor/pharmacy-agent/pkg/model"
	"github.com/sealor/pharmacy-agent/pkg/model/anthropicmodel"
	"github.com/sealor/pharmacy-agent/pkg/model/openaimodel"
	"github.com/sealor/pharmacy-agent/pkg/persistence"
	"github.com/sealor/pharmacy-agent/pkg/pharmacy"
	"github.com/sealor/pharmacy-agent/pkg/server"
	"github.com/sealor/pharmacy-agent/pkg/tooling"
)

func main() {
	flags := config.NewFlagSet(os.Args[0], flag.ExitOnError)
	serve := flags.Bool("serve", false, "Serve the chat endpoint over HTTP")
	seed := flags.Bool("seed", false, "Recreate the demo data in the database and exit")
	validateSeed := flags.Bool("validate-seed", false, "Check the demo data in the database and exit")
	runEval := flags.Bool("eval", false, "Run the evaluation cases and exit")
	evalCases := flags.String("eval-cases", "", "YAML file with evaluation cases (default: built-in cases)")
	userMessage := flags.String("message", "", "User message")
	noColor := flags.Bool("no-color", false, "Disable colored log output")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags.ConfigPath, os.LookupEnv)
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	flags.Apply(&cfg)
	cfg.Complete(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		log.Fatalln("ERROR:", err)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(os.Stderr, level, *noColor)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := pharmacy.Open(ctx, cfg.DBPath, logger.With("component", "pharmacy"))
	if err != nil {
		log.Fatalln("ERROR:", err)
	}
	defer store.Close()

	switch {
	case *seed:
		if err := store.Seed(ctx, time.Now()); err != nil {
			log.Fatalln("ERROR:", err)
		}
		logger.Info("database seeded", "db_path", cfg.DBPath)
		return
	case *validateSeed:
		os.Exit(validate(ctx, store, os.Stdout))
	}

	if stats, err := store.Stats(ctx); err != nil || stats.Medications == 0 {
		logger.Warn("database holds no demo data, run with -seed first", "db_path", cfg.DBPath)
	}

	dispatcher := tooling.NewDispatcher(store, logger.With("component", "tooling"))
	orchestrator := agent.New(newModelClient(cfg, logger.With("component", "model")), dispatcher, cfg.Model, logger.With("component", "agent"))
	orchestrator.MaxRounds = cfg.MaxRounds
	orchestrator.ModelTimeout = cfg.ModelTimeout
	orchestrator.TurnTimeout = cfg.TurnTimeout
	orchestrator.MaxOutputTokens = cfg.MaxOutputTokens

	switch {
	case *runEval:
		cases := eval.BuiltinCases()
		if *evalCases != "" {
			if cases, err = eval.LoadCases(*evalCases); err != nil {
				log.Fatalln("ERROR:", err)
			}
		}
		if !eval.Run(ctx, orchestrator, cases, os.Stdout) {
			os.Exit(1)
		}
	case *serve:
		if err := serveHTTP(ctx, server.New(orchestrator, store, logger.With("component", "http")), cfg.HTTPAddr); err != nil {
			log.Fatalln("ERROR:", err)
		}
	default:
		if err := repl(ctx, cfg, orchestrator, *userMessage); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalln("ERROR:", err)
		}
	}
}

func newModelClient(cfg config.Config, logger *slog.Logger) model.Client {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropicmodel.New(anthropicmodel.Options{
			BaseURL: cfg.APIURL, APIKey: cfg.APIKey, DebugHTTP: cfg.DebugHTTP, Timeout: cfg.ModelTimeout, Logger: logger,
		})
	default:
		return openaimodel.New(openaimodel.Options{
			BaseURL: cfg.APIURL, APIKey: cfg.APIKey, DebugHTTP: cfg.DebugHTTP, Timeout: cfg.ModelTimeout,
		})
	}
}

func validate(ctx context.Context, store *pharmacy.Store, w io.Writer) int {
	stats, err := store.Stats(ctx)
	if err != nil {
		fmt.Fprintln(w, "Fatal:", err)
		return 1
	}
	data, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Fprintln(w, string(data))
	if err := stats.Check(); err != nil {
		fmt.Fprintln(w, "Invalid seed:", err)
		return 1
	}
	fmt.Fprintln(w, "Seed OK")
	return 0
}

func serveHTTP(ctx context.Context, srv *server.Server, addr string) error {
	errs := make(chan error, 1)
	go func() { errs <- srv.Start(addr) }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func repl(ctx context.Context, cfg config.Config, turns *agent.Orchestrator, message string) error {
	session := &persistence.Session{}
	if cfg.SessionFile != "" {
		var err error
		if session, err = persistence.TryToResumeSession(cfg.SessionFile); err != nil {
			return err
		}
	}
	session.Provider = cfg.Provider
	session.Model = cfg.Model

	r := &chat.REPL{Turns: turns, Out: os.Stdout, Session: session, SessionFile: cfg.SessionFile}
	var in chat.LineReader = chat.NewLines(os.Stdin)
	if chat.IsTerminal(os.Stdin) {
		t := chat.NewTerminal(os.Stdin, "> ")
		r.Out = t.Writer()
		in = t
	}
	return r.Run(ctx, in, message)
}
