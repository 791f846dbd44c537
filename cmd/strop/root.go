package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/justyntemme/strop/internal/config"
	"github.com/justyntemme/strop/internal/conflict"
	"github.com/justyntemme/strop/internal/engine"
	"github.com/justyntemme/strop/internal/logging"
	"github.com/justyntemme/strop/internal/store"
)

// shutdownGrace is how long running operations get to finish on exit.
const shutdownGrace = 5 * time.Second

type cli struct {
	configPath  string
	logLevel    string
	onConflict  string
	metricsAddr string

	mgr *config.Manager
}

func newRootCmd() *cobra.Command {
	c := &cli{mgr: config.NewManager()}

	root := &cobra.Command{
		Use:           "strop",
		Short:         "Browse and manage files from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&c.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&c.onConflict, "on-conflict", "", "ask, overwrite, skip or rename")

	root.AddCommand(
		c.lsCmd(),
		c.copyCmd(),
		c.moveCmd(),
		c.removeCmd(),
		c.trashCmd(),
		c.renameCmd(),
		c.mkdirCmd(),
		c.watchCmd(),
		c.bookmarksCmd(),
		c.recentCmd(),
		c.historyCmd(),
		c.volumesCmd(),
		c.findCmd(),
		c.infoCmd(),
		c.openCmd(),
		c.configCmd(),
	)
	return root
}

// setup loads the config, applies flag overrides and starts logging.
func (c *cli) setup(cmd *cobra.Command) error {
	if err := c.mgr.Load(c.configPath); err != nil {
		return err
	}
	if c.logLevel != "" {
		if err := c.mgr.Override("logging.level", c.logLevel); err != nil {
			return err
		}
	}
	if c.onConflict != "" {
		if _, err := conflict.ParsePolicy(c.onConflict); err != nil {
			return err
		}
		if err := c.mgr.Override("operations.defaultPolicy", c.onConflict); err != nil {
			return err
		}
	}
	if c.metricsAddr != "" {
		if err := c.mgr.Override("metrics.addr", c.metricsAddr); err != nil {
			return err
		}
	}

	cfg := c.mgr.Get()
	if err := logging.Init(cfg.Logging.Logging()); err != nil {
		return err
	}
	if err := c.mgr.ParseError(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: ignoring %s: %v\n", c.mgr.Path(), err)
	}
	logging.Named("cli").Debug("starting", zap.String("command", cmd.CommandPath()))
	return nil
}

// runtime is an engine plus its database for the length of one command.
type runtime struct {
	cfg config.Config
	db  *store.DB
	eng *engine.Engine
}

// start opens the database and the engine. The database is optional: a
// failure to open it is logged and bookmarks become unavailable.
func (c *cli) start() *runtime {
	cfg := c.mgr.Get()
	rt := &runtime{cfg: cfg}

	var opts []engine.Option
	db, err := store.Open(cfg.Store.Path, cfg.Session.MaxRecent)
	if err != nil {
		logging.Named("cli").Warn("database unavailable", zap.String("path", cfg.Store.Path), zap.Error(err))
	} else {
		rt.db = db
		opts = append(opts, engine.WithStore(db))
	}
	rt.eng = engine.New(cfg, opts...)
	return rt
}

// close shuts the engine down, draining whatever events are left.
func (rt *runtime) close() error {
	go func() {
		for range rt.eng.Events() {
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := rt.eng.Close(ctx)
	if rt.db != nil {
		if cerr := rt.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// withEngine runs fn with a started runtime and closes it afterwards.
func (c *cli) withEngine(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt := c.start()
	err := fn(cmd.Context(), rt)
	if cerr := rt.close(); err == nil {
		err = cerr
	}
	return err
}
