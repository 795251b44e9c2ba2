package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/bowgo"
	"github.com/hupe1980/bowgo/config"
	bowprom "github.com/hupe1980/bowgo/prometheus"
)

// globals holds the persistent flags and the state derived from them.
type globals struct {
	configPath string
	snapshot   string
	verbose    bool

	cfg       *config.Config
	collector *bowprom.Collector
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "bowgo",
		Short: "Bag-of-words keyframe retrieval and matching",
		Long: `bowgo - Visual place recognition with a hierarchical vocabulary.

Keyframe descriptors are indexed into a snapshot file. Frames are queried
against the snapshot to find the most similar keyframes, and matched
against a single keyframe to find descriptor correspondences.

Configuration is read from a YAML file (--config) and BOWGO_* environment
variables.

Examples:
  # Index keyframes 100.. from descriptor files
  bowgo -c bowgo.yaml index --start-id 100 kf-*.desc

  # Retrieve keyframes for a frame
  bowgo -c bowgo.yaml query frame.desc

  # Publish the snapshot to the configured object store
  bowgo -c bowgo.yaml publish`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return g.flushMetrics()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&g.snapshot, "snapshot", "", "snapshot file (overrides snapshot.path)")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newIndexCmd(g),
		newQueryCmd(g),
		newMatchCmd(g),
		newSuppressCmd(g),
		newStatsCmd(g),
		newPublishCmd(g),
		newFetchCmd(g),
	)
	return rootCmd
}

func (g *globals) load() error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.snapshot != "" {
		cfg.Snapshot.Path = g.snapshot
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	}
	if cfg.Metrics.Enabled {
		c, err := bowprom.New(bowprom.WithNamespace(cfg.Metrics.Namespace))
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		g.collector = c
	}
	g.cfg = cfg
	return nil
}

func (g *globals) flushMetrics() error {
	if g.collector == nil || g.cfg.Metrics.TextFile == "" {
		return nil
	}
	return g.collector.WriteTextfile(g.cfg.Metrics.TextFile)
}

// open creates a Retriever from the loaded configuration.
func (g *globals) open() (*bowgo.Retriever, error) {
	var opts []bowgo.Option
	if g.collector != nil {
		opts = append(opts, bowgo.WithMetricsCollector(g.collector))
	}
	return bowgo.Open(g.cfg, opts...)
}

// snapshotPath returns the configured snapshot path or an error if unset.
func (g *globals) snapshotPath() (string, error) {
	if g.cfg.Snapshot.Path == "" {
		return "", fmt.Errorf("no snapshot path: set snapshot.path or --snapshot")
	}
	return g.cfg.Snapshot.Path, nil
}

// openWithSnapshot opens a Retriever and loads the local snapshot into it.
func (g *globals) openWithSnapshot(ctx context.Context) (*bowgo.Retriever, error) {
	path, err := g.snapshotPath()
	if err != nil {
		return nil, err
	}
	r, err := g.open()
	if err != nil {
		return nil, err
	}
	if err := r.LoadFromFile(ctx, path); err != nil {
		return nil, err
	}
	return r, nil
}
