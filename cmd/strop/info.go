package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/justyntemme/strop/internal/engine"
	"github.com/justyntemme/strop/internal/fs"
	"github.com/justyntemme/strop/internal/shell"
)

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info PATH",
		Short: "Describe a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := fs.Clean(absPath(args[0]))
			if err != nil {
				return err
			}
			props, err := shell.Describe(fs.OS{}, p)
			if err != nil {
				return err
			}
			return printProperties(cmd.OutOrStdout(), props)
		},
	}
}

func printProperties(w io.Writer, p shell.Properties) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s\n", p.Path)
	fmt.Fprintf(tw, "Kind:\t%s\n", p.Kind)
	fmt.Fprintf(tw, "Type:\t%s\n", p.MIME)
	if p.Size != "" {
		fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", p.Size, p.Entry.Size)
	}
	if p.Kind == fs.KindDirectory {
		fmt.Fprintf(tw, "Items:\t%d\n", p.Children)
	}
	if p.Target != "" {
		fmt.Fprintf(tw, "Target:\t%s\n", p.Target)
	}
	fmt.Fprintf(tw, "Mode:\t%s\n", p.Perm)
	if p.Modified != "" {
		fmt.Fprintf(tw, "Modified:\t%s (%s)\n", p.ModTime.Format("2006-01-02 15:04:05"), p.Modified)
	}
	fmt.Fprintf(tw, "Hidden:\t%t\n", p.Hidden)
	return tw.Flush()
}

func (c *cli) openCmd() *cobra.Command {
	var properties bool
	cmd := &cobra.Command{
		Use:   "open PATH",
		Short: "Open a path with the desktop's default application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, rt *runtime) error {
				action := engine.ActionOpen
				if properties {
					action = engine.ActionShowProperties
				}
				res, err := rt.eng.Do(ctx, engine.Request{Action: action, Path: absPath(args[0])})
				if err != nil {
					return err
				}
				if res.Properties != nil {
					return printProperties(cmd.OutOrStdout(), *res.Properties)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&properties, "properties", false, "show the desktop's properties dialog instead")
	return cmd
}
