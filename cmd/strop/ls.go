package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justyntemme/strop/internal/engine"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/index"
)

func (c *cli) lsCmd() *cobra.Command {
	var all, long bool
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				dir := rt.eng.StartPath(ctx)
				if len(args) == 1 {
					dir = absPath(args[0])
				}
				if all && !rt.eng.ShowHidden() {
					if _, err := rt.eng.Do(ctx, engine.Request{Action: engine.ActionSetShowHidden, Show: true}); err != nil {
						return err
					}
					defer func() { _ = rt.eng.Submit(engine.Request{Action: engine.ActionSetShowHidden, Show: false}) }()
				}
				n, err := rt.load(ctx, dir)
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), n.Entries, long)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include hidden entries")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show permissions, size and modification time")
	return cmd
}

// load navigates to dir and waits for its first scan.
func (rt *runtime) load(ctx context.Context, dir string) (index.Node, error) {
	res, err := rt.eng.Do(ctx, engine.Request{Action: engine.ActionNavigate, Path: dir})
	if err != nil {
		return index.Node{}, err
	}
	n := res.Node
	for !n.Loaded && n.Err == nil {
		select {
		case ev, ok := <-rt.eng.Events():
			if !ok {
				return n, engine.ErrClosed
			}
			if tu, ok := ev.(index.TreeUpdated); ok && tu.Path == n.Path {
				n.Entries, n.Err, n.Loaded = tu.Entries, tu.Err, tu.Loaded
			}
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
	return n, n.Err
}

func printEntries(w io.Writer, entries []fs.Entry, long bool) {
	if !long {
		for _, e := range entries {
			fmt.Fprintln(w, displayName(e))
		}
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		size := "-"
		if e.HasSize && e.Kind == fs.KindFile {
			size = humanize.IBytes(uint64(e.Size))
		}
		mod := ""
		if !e.ModTime.IsZero() {
			mod = e.ModTime.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", modeString(e), size, mod, displayName(e))
	}
	_ = tw.Flush()
}

func displayName(e fs.Entry) string {
	if e.Kind == fs.KindDirectory {
		return e.Name + "/"
	}
	return e.Name
}

func modeString(e fs.Entry) string {
	prefix := "-"
	switch e.Kind {
	case fs.KindDirectory:
		prefix = "d"
	case fs.KindSymlink:
		prefix = "l"
	}
	perm := e.Perm.Perm().String()
	return prefix + perm[1:]
}
