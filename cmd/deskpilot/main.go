package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/odvcencio/deskpilot/pkg/api"
	"github.com/odvcencio/deskpilot/pkg/assistant"
	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/executor"
	"github.com/odvcencio/deskpilot/pkg/guard"
	"github.com/odvcencio/deskpilot/pkg/llm"
	"github.com/odvcencio/deskpilot/pkg/logging"
	"github.com/odvcencio/deskpilot/pkg/tts"
)

// Version information - set via ldflags during build
var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		addr      string
		rulesPath string
		logDir    string
		verbose   bool
		showVer   bool
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	flag.StringVar(&rulesPath, "rules", "", "path to rules.yaml (built-in defaults when empty)")
	flag.StringVar(&logDir, "logs", "", "log directory (default ~/.deskpilot/logs)")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flag.BoolVar(&showVer, "version", false, "print version and exit")
	flag.Parse()

	if showVer {
		fmt.Printf("deskpilot %s (%s)\n", version, commit)
		return
	}

	if err := run(addr, rulesPath, logDir, verbose); err != nil {
		fmt.Fprintf(os.Stderr, "deskpilot: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, rulesPath, logDir string, verbose bool) error {
	home := guard.UserHome()

	if logDir == "" {
		logDir = filepath.Join(home, ".deskpilot", "logs")
	}
	logger, err := logging.NewLogger(logDir)
	if err != nil {
		return err
	}
	defer logger.Close()
	if verbose {
		logger.SetMinLevel(logging.LevelDebug)
	}

	// The guard boundary is fixed at startup from the rules file; rule edits
	// at runtime change classification, not the allowed roots.
	rules := config.Default(home)
	if rulesPath != "" {
		loaded, err := config.Load(rulesPath, home)
		if err != nil {
			return err
		}
		rules = loaded
	}
	g := guard.New(home, rules.AllowedRoots)
	exec := executor.New(g, nil, logger)

	cfg := api.Config{
		RulesPath: rulesPath,
		Home:      home,
		Executor:  exec,
		Logger:    logger,
	}
	if os.Getenv("DEEPSEEK_API_KEY") != "" {
		cfg.Assistant = assistant.New(llm.NewClientFromEnv(), exec, logger)
	}
	if os.Getenv("DOUBAO_APP_ID") != "" && os.Getenv("DOUBAO_ACCESS_TOKEN") != "" {
		cfg.TTS = tts.NewClientFromEnv()
	}
	server := api.NewServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(logging.CategoryAPI, "server_starting", "", map[string]any{
		"addr":          addr,
		"rules_path":    rulesPath,
		"allowed_roots": g.Roots(),
	})
	return server.Start(ctx, addr)
}
