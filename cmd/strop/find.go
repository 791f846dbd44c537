package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/search"
)

func (c *cli) findCmd() *cobra.Command {
	var (
		dir    string
		all    bool
		tool   string
		long   bool
		maxHit int
	)
	cmd := &cobra.Command{
		Use:   "find QUERY...",
		Short: "Search below a directory",
		Long: `Search below a directory. Bare words match names (globs match the whole
name), and directives narrow the search:

  name:PATTERN  contents:TEXT  ext:EXT  size:>10MB
  modified:>2024-01-01 (or today, yesterday, week, month, year)  depth:N`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.mgr.Get()
			q, err := search.Parse(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if tool == "" {
				tool = cfg.Search.Tool
			}
			t, err := search.ParseTool(tool)
			if err != nil {
				return err
			}
			root, err := fs.Clean(absPath(dir))
			if err != nil {
				return err
			}

			var found []fs.Entry
			err = search.Find(cmd.Context(), root, q, search.Options{
				Depth:  cfg.Search.Depth,
				Hidden: all || cfg.Session.ShowHidden,
				Tool:   t,
			}, func(e fs.Entry) error {
				found = append(found, e)
				if maxHit > 0 && len(found) >= maxHit {
					return errLimit
				}
				return nil
			})
			if err != nil && !errors.Is(err, errLimit) {
				return err
			}
			fs.SortEntries(found)
			if long {
				for i := range found {
					if rel, err := filepath.Rel(root, found[i].Path); err == nil {
						found[i].Name = rel
					}
				}
				printEntries(cmd.OutOrStdout(), found, true)
				return nil
			}
			for _, e := range found {
				fmt.Fprintln(cmd.OutOrStdout(), e.Path)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&dir, "dir", "C", ".", "directory to search")
	f.BoolVarP(&all, "all", "a", false, "include hidden entries")
	f.StringVar(&tool, "tool", "", "contents search tool: builtin, ripgrep, ugrep or auto")
	f.BoolVarP(&long, "long", "l", false, "show permissions, size and modification time")
	f.IntVarP(&maxHit, "max", "n", 0, "stop after this many results")
	return cmd
}

var errLimit = errors.New("result limit reached")
