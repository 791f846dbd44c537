package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/engine"
	"github.com/justyntemme/strop/internal/ops"
	"github.com/justyntemme/strop/internal/trash"
)

func (c *cli) copyCmd() *cobra.Command {
	return c.transferCmd(ops.Copy, "cp SOURCE... DIR", "Copy files into a directory")
}

func (c *cli) moveCmd() *cobra.Command {
	return c.transferCmd(ops.Move, "mv SOURCE... DIR", "Move files into a directory")
}

func (c *cli) transferCmd(kind ops.Kind, use, short string) *cobra.Command {
	var progress bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, dst := args[:len(args)-1], args[len(args)-1]
			return c.operate(cmd, progress, ops.Request{Kind: kind, Sources: abs(sources), Destination: absPath(dst)})
		},
	}
	cmd.Flags().BoolVarP(&progress, "progress", "p", false, "report progress while running")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm PATH...",
		Short: "Delete files and directories permanently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.operate(cmd, false, ops.Request{Kind: ops.Delete, Sources: abs(args)})
		},
	}
}

func (c *cli) trashCmd() *cobra.Command {
	var list, empty bool
	cmd := &cobra.Command{
		Use:   "trash [PATH...]",
		Short: "Move files to the " + trash.DisplayName(),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case list:
				return listTrash(cmd.OutOrStdout())
			case empty:
				return trash.Default().Empty()
			case len(args) == 0:
				return errors.New("nothing to trash")
			}
			return c.operate(cmd, false, ops.Request{Kind: ops.Trash, Sources: abs(args)})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list what is in the trash")
	cmd.Flags().BoolVar(&empty, "empty", false, "permanently delete everything in the trash")
	cmd.MarkFlagsMutuallyExclusive("list", "empty")
	return cmd
}

func listTrash(w io.Writer) error {
	items, err := trash.Default().List()
	if err != nil {
		return err
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", it.DeletedAt.Format(time.DateTime), humanize.IBytes(uint64(it.Size)), it.OriginalPath)
	}
	return nil
}

func (c *cli) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename PATH NEWNAME",
		Short: "Rename a file within its directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.operate(cmd, false, ops.Request{Kind: ops.Rename, Sources: abs(args[:1]), NewName: args[1]})
		},
	}
}

func (c *cli) mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir [DIR] NAME",
		Short: "Create a folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, name := ".", args[0]
			if len(args) == 2 {
				dir, name = args[0], args[1]
			}
			return c.operate(cmd, false, ops.Request{Kind: ops.CreateFolder, Destination: absPath(dir), NewName: name})
		},
	}
}

// operate runs one operation to completion, answering conflict prompts on
// the terminal.
func (c *cli) operate(cmd *cobra.Command, progress bool, req ops.Request) error {
	return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
		req.Policy = rt.cfg.Operations.Policy()
		t, err := rt.run(ctx, req, &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr()}, progressWriter(cmd, progress))
		if err != nil {
			return err
		}
		report(cmd.OutOrStdout(), t)
		switch t.Status {
		case ops.Succeeded:
			return nil
		case ops.Cancelled:
			return errors.New("cancelled")
		default:
			return fmt.Errorf("%s %s", t.Kind, t.Status)
		}
	})
}

func progressWriter(cmd *cobra.Command, on bool) io.Writer {
	if on {
		return cmd.ErrOrStderr()
	}
	return nil
}

// run submits req and follows its events until it completes. The finished
// task is acknowledged so it lands in the operation history.
func (rt *runtime) run(ctx context.Context, req ops.Request, p *prompter, progress io.Writer) (ops.Task, error) {
	res, err := rt.eng.Do(ctx, engine.Request{Action: engine.ActionStartOperation, Operation: req})
	if err != nil {
		return ops.Task{}, err
	}
	id := res.TaskID

	for {
		select {
		case <-ctx.Done():
			_ = rt.eng.Submit(engine.Request{Action: engine.ActionCancelOperation, TaskID: id})
			t, err := rt.eng.Wait(context.Background(), id)
			if err != nil {
				return t, err
			}
			return t, ctx.Err()
		case ev, ok := <-rt.eng.Events():
			if !ok {
				return ops.Task{}, engine.ErrClosed
			}
			switch ev := ev.(type) {
			case ops.Progress:
				if ev.TaskID == id && progress != nil {
					fmt.Fprintf(progress, "%s %s / %s  %s\n", ev.Kind,
						humanize.IBytes(uint64(ev.TaskBytesDone)), humanize.IBytes(uint64(ev.TaskBytesTotal)), ev.Source)
				}
			case ops.ConflictRequest:
				if ev.TaskID != id {
					continue
				}
				d, all := p.ask(ev.Prompt)
				if _, err := rt.eng.Do(ctx, engine.Request{
					Action:     engine.ActionResolveConflict,
					TaskID:     id,
					Source:     ev.Source,
					Decision:   d,
					ApplyToAll: all,
				}); err != nil {
					return ops.Task{}, err
				}
			case ops.Completed:
				if ev.Task.ID != id {
					continue
				}
				_, err := rt.eng.Do(ctx, engine.Request{Action: engine.ActionAcknowledgeOperation, TaskID: id})
				return ev.Task, err
			}
		}
	}
}

// prompter asks how to resolve a conflict. An upper-case answer applies to
// the rest of the task.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(q conflict.Prompt) (conflict.Decision, bool) {
	for {
		fmt.Fprintf(p.out, "%s already exists in %s.\n[o]verwrite [s]kip [r]ename [a]bort (capital for all): ",
			filepath.Base(q.Source), q.Destination)
		line, err := p.in.ReadString('\n')
		if err != nil && line == "" {
			return conflict.Abort, false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		all := strings.ToUpper(line) == line && strings.ToLower(line) != line
		switch strings.ToLower(line)[0] {
		case 'o':
			return conflict.Overwrite, all
		case 's':
			return conflict.Skip, all
		case 'r':
			return conflict.Rename, all
		case 'a':
			return conflict.Abort, false
		}
	}
}

// report prints one line per item plus a summary.
func report(w io.Writer, t ops.Task) {
	for _, it := range t.Items {
		switch it.Outcome {
		case ops.OutcomeSucceeded:
			if it.Target != "" && it.Target != it.Source {
				fmt.Fprintf(w, "%s -> %s\n", it.Source, it.Target)
			}
		case ops.OutcomeSkipped:
			fmt.Fprintf(w, "skipped %s\n", it.Source)
		case ops.OutcomeFailed, ops.OutcomePartial:
			fmt.Fprintf(w, "%s %s: %v\n", it.Outcome, it.Source, it.Err)
			for _, f := range it.Failures {
				fmt.Fprintf(w, "  %s: %v\n", f.Path, f.Err)
			}
		}
	}
	elapsed := ""
	if !t.Started.IsZero() && !t.Finished.IsZero() {
		elapsed = " in " + t.Finished.Sub(t.Started).Round(time.Millisecond).String()
	}
	if n := t.BytesDone(); n > 0 {
		fmt.Fprintf(w, "%s %s: %d items, %s%s\n", t.Kind, t.Status, len(t.Items), humanize.IBytes(uint64(n)), elapsed)
		return
	}
	fmt.Fprintf(w, "%s %s: %d items%s\n", t.Kind, t.Status, len(t.Items), elapsed)
}

func abs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = absPath(p)
	}
	return out
}

// absPath resolves p against the working directory; the engine would
// otherwise resolve it against its own current directory.
func absPath(p string) string {
	if strings.HasPrefix(p, "~") || filepath.IsAbs(p) {
		return p
	}
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}
