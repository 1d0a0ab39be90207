// Binary memagent-mcp serves one memory agent over the Model Context
// Protocol on stdio, so other assistants can consult and update the memory.
//
// Usage in .mcp.json:
//
//	{
//	  "mcpServers": {
//	    "memory": {
//	      "type": "stdio",
//	      "command": "memagent-mcp",
//	      "args": ["-config", "/path/to/memagent.toml"]
//	    }
//	  }
//	}
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nevindra/memagent/internal/app"
	"github.com/nevindra/memagent/internal/config"
	"github.com/nevindra/memagent/internal/mcptool"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "memagent-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("MEMAGENT_CONFIG"), "path to memagent.toml")
	root := flag.String("root", "", "memory root (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *root != "" {
		cfg.Agent.Root = *root
	}

	// stdout carries the protocol; logs go to stderr.
	ctx := context.Background()
	a, err := app.New(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	agent, err := a.NewAgent()
	if err != nil {
		return err
	}
	defer func() {
		if a.Store != nil {
			if err := agent.Archive(ctx, a.Store); err != nil {
				a.Logger.Error("archive conversation", "error", err)
			}
		}
	}()

	s := server.NewMCPServer(
		"memagent",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("use_memory_agent answers from, and writes to, the user's persistent memory."),
	)
	memTool := mcptool.NewMemoryTool(a.Chatter(agent))
	s.AddTool(memTool.Definition(), memTool.Handle)
	saveTool := mcptool.NewSaveTool(agent)
	s.AddTool(saveTool.Definition(), saveTool.Handle)

	a.Logger.Info("mcp server ready", "root", agent.Root(), "agent_id", agent.ID())
	return server.ServeStdio(s)
}
