package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

var errNoStore = errors.New("no transcript store configured (set [transcripts] driver)")

func runTranscripts(ctx context.Context, args []string, out io.Writer) error {
	var c common
	fs := flag.NewFlagSet("transcripts", flag.ContinueOnError)
	c.register(fs)
	n := fs.Int("n", 20, "how many to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	if a.Store == nil {
		return errNoStore
	}

	list, err := a.Store.ListTranscripts(ctx, *n)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUPDATED\tMESSAGES\tMODEL")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, time.Unix(t.UpdatedAt, 0).Format(time.DateTime), t.Messages, t.Model)
	}
	return tw.Flush()
}

func runShow(ctx context.Context, args []string, out io.Writer) error {
	var c common
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("show: want exactly one transcript id")
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	if a.Store == nil {
		return errNoStore
	}

	t, err := a.Store.GetTranscript(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s\n", data)
	return err
}
