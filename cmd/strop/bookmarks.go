package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justyntemme/strop/internal/engine"
)

func (c *cli) bookmarksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bookmarks",
		Aliases: []string{"bm"},
		Short:   "List bookmarked directories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				bms, err := rt.eng.Bookmarks(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, b := range bms {
					fmt.Fprintf(tw, "%s\t%s\n", b.Name, b.Path)
				}
				return tw.Flush()
			})
		},
	}

	var name string
	add := &cobra.Command{
		Use:   "add [dir]",
		Short: "Bookmark a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.eng.Do(ctx, engine.Request{Action: engine.ActionAddBookmark, Path: argOrCwd(args), Name: name})
				return err
			})
		},
	}
	add.Flags().StringVarP(&name, "name", "n", "", "label shown instead of the directory name")

	remove := &cobra.Command{
		Use:     "rm [dir]",
		Aliases: []string{"remove"},
		Short:   "Remove a bookmark",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				_, err := rt.eng.Do(ctx, engine.Request{Action: engine.ActionRemoveBookmark, Path: argOrCwd(args)})
				return err
			})
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func (c *cli) recentCmd() *cobra.Command {
	var forget string
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently visited directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				if rt.db == nil {
					return engine.ErrNoStore
				}
				if forget != "" {
					return rt.db.ForgetRecent(ctx, absPath(forget))
				}
				recent, err := rt.db.Recent(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, r := range recent {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", humanize.Time(r.Visited), r.Visits, r.Path)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&forget, "forget", "", "remove a directory from the list")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				if rt.db == nil {
					return engine.ErrNoStore
				}
				recs, err := rt.db.Operations(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
						humanize.Time(r.Finished), r.Kind, r.Status, r.Items-r.Failed, r.Items,
						humanize.IBytes(uint64(r.Bytes)), r.Destination)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "how many operations to show")
	return cmd
}

func (c *cli) volumesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "List mounted drives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd, func(_ context.Context, rt *runtime) error {
				vols := rt.eng.Volumes()
				if len(vols) == 0 {
					return errors.New("no volumes found")
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, v := range vols {
					fmt.Fprintf(tw, "%s\t%s\n", v.Name, v.Path)
				}
				return tw.Flush()
			})
		},
	}
}

func argOrCwd(args []string) string {
	if len(args) == 0 {
		return absPath(".")
	}
	return absPath(args[0])
}
