// Command memagent is an interactive memory agent for the terminal.
//
//	memagent [-config memagent.toml] [-root dir] [-model name] [-thoughts] [-save]
//	memagent import [-config ...] [-root dir] [-dir entities] <path|url>...
//	memagent transcripts [-config ...] [-n 20]
//	memagent show [-config ...] <transcript-id>
//
// In the chat loop, /save [path] writes the conversation as JSON, /reset
// starts over with the same memory, and /quit exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nevindra/memagent/internal/app"
	"github.com/nevindra/memagent/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "chat"
	if len(args) > 0 {
		switch args[0] {
		case "chat", "import", "transcripts", "show":
			cmd, args = args[0], args[1:]
		case "help", "-h", "--help":
			printUsage(os.Stdout)
			return
		}
	}

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx, args, os.Stdin, os.Stdout)
	case "import":
		err = runImport(ctx, args, os.Stdout)
	case "transcripts":
		err = runTranscripts(ctx, args, os.Stdout)
	case "show":
		err = runShow(ctx, args, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "memagent: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags every subcommand accepts.
type common struct {
	config string
	root   string
	model  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.config, "config", os.Getenv("MEMAGENT_CONFIG"), "path to memagent.toml")
	fs.StringVar(&c.root, "root", "", "memory root (overrides config)")
	fs.StringVar(&c.model, "model", "", "model name (overrides config)")
}

func (c *common) load() (config.Config, error) {
	cfg, err := config.Load(c.config)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if c.root != "" {
		cfg.Agent.Root = c.root
	}
	if c.model != "" {
		cfg.LLM.Model = c.model
	}
	return cfg, nil
}

func (c *common) open(ctx context.Context) (*app.App, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, os.Stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `memagent: a memory agent backed by a directory of Markdown files

Usage:
  memagent [chat] [flags]             talk to the agent
  memagent import [flags] <src>...    import files or URLs as notes
  memagent transcripts [flags]        list archived conversations
  memagent show [flags] <id>          print an archived conversation

Run "memagent <command> -h" for flags.
`)
}
