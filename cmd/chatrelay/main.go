package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/conversation"
	"github.com/comigor/chatrelay/internal/history"
	"github.com/comigor/chatrelay/internal/logger"
	"github.com/comigor/chatrelay/internal/mcpserver"
	"github.com/comigor/chatrelay/internal/storage"
	"github.com/comigor/chatrelay/internal/terminal"
	"github.com/comigor/chatrelay/internal/transport"
)

const usage = `usage: chatrelay [mcp]

  (no argument)  chat on this terminal
  mcp            serve send_message and get_history over MCP stdio
`

func main() {
	mode := "terminal"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != "terminal" && mode != "mcp" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(os.Stderr, cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		logger.L.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(mode, cfg); err != nil {
		logger.L.Error("chatrelay stopped", "error", err)
		os.Exit(1)
	}
}

// run serves one session in the given mode. Storage is closed on every path.
func run(mode string, cfg *config.Config) error {
	tr, err := transport.New(*cfg)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	kv := storage.Open(cfg.Storage)
	defer func() {
		if err := kv.Close(); err != nil {
			logger.L.Warn("failed to close history storage", "error", err)
		}
	}()
	store := history.New(kv, cfg.Storage.Key)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "mcp":
		ctrl := conversation.New(tr, store, conversation.NopView{}, cfg.Widget)
		ctrl.Start()
		logger.L.Info("serving MCP over stdio", "name", cfg.MCP.Name, "transport", cfg.Transport.Kind)
		err = mcpserver.Serve(mcpserver.New(ctrl, cfg.MCP))
	default:
		loc, _ := cfg.Widget.Location()
		view := terminal.NewView(os.Stdout, loc, colorOutput())
		ctrl := conversation.New(tr, store, view, cfg.Widget)
		err = terminal.Run(ctx, ctrl, os.Stdin)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// colorOutput reports whether stdout is a terminal that accepts ANSI codes.
func colorOutput() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
