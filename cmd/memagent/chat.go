package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/nevindra/memagent"
	"github.com/nevindra/memagent/observer"
)

func runChat(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	var c common
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	c.register(fs)
	thoughts := fs.Bool("thoughts", false, "print the agent's reasoning")
	saveOnExit := fs.Bool("save", false, "save the conversation on exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	agent, err := a.NewAgent()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "memory: %s\nmodel:  %s\n/save [path], /reset, /quit\n\n", agent.Root(), agent.Model())

	s := &session{agent: agent, chat: a.Chatter(agent), out: out, thoughts: *thoughts}
	err = s.loop(ctx, in)

	if *saveOnExit {
		s.save("")
	}
	if a.Store != nil && len(agent.History()) > 1 {
		if aerr := agent.Archive(context.Background(), a.Store); aerr != nil {
			a.Logger.Error("archive conversation", "error", aerr)
		}
	}
	return err
}

// session is one interactive chat.
type session struct {
	agent    *memagent.Agent
	chat     observer.Chatter
	out      io.Writer
	thoughts bool
}

// loop reads lines until EOF, /quit or cancellation.
func (s *session) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(s.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(s.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := s.command(line); done {
				return nil
			}
			continue
		}
		s.turn(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// command handles a slash command and reports whether to exit.
func (s *session) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true
	case "/save":
		s.save(strings.TrimSpace(arg))
	case "/reset":
		s.agent.Reset()
		fmt.Fprintln(s.out, "conversation cleared")
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", name)
	}
	return false
}

func (s *session) save(path string) {
	p, err := s.agent.SaveConversation(path)
	if err != nil {
		fmt.Fprintf(s.out, "save failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "saved to %s\n", p)
}

func (s *session) turn(ctx context.Context, msg string) {
	resp := s.chat.Chat(ctx, msg)
	if s.thoughts && resp.Thoughts != "" {
		fmt.Fprintf(s.out, "(thinking) %s\n", resp.Thoughts)
	}
	switch {
	case resp.Reply != "":
		fmt.Fprintln(s.out, resp.Reply)
	case resp.BudgetExhausted:
		fmt.Fprintf(s.out, "[%s after %d tool turns]\n", memagent.KindBudgetExhausted, resp.ToolTurns)
	case resp.Malformed:
		fmt.Fprintf(s.out, "[%s]\n", memagent.KindMalformedTurn)
	}
}
