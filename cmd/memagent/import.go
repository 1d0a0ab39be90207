package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/nevindra/memagent/ingest"
	"github.com/nevindra/memagent/memory"
)

func runImport(ctx context.Context, args []string, out io.Writer) error {
	var c common
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	c.register(fs)
	dir := fs.String("dir", memory.EntitiesDir, "directory under the root to write notes to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import: no sources given")
	}

	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// Opening an agent bootstraps the root the same way a chat would.
	agent, err := a.NewAgent()
	if err != nil {
		return err
	}
	im := ingest.NewImporter(agent.Memory(), ingest.WithDir(*dir), ingest.WithLogger(a.Logger))
	results, err := im.Import(ctx, fs.Args()...)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", r.Source, r.Err)
			continue
		}
		fmt.Fprintf(out, "ok   %s -> %s (%d bytes)\n", r.Source, r.Path, r.Bytes)
	}
	return err
}
