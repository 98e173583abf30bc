package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/cmd/ndb/internal/config"
	"github.com/hupe1980/ndb/persistence"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	cfgFile   string
	storePath string
	logLevel  string
	cfg       *config.Config
}

// NewRootCmd builds the ndb command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "ndb",
		Short: "ndb - inspect and maintain memory-mapped constant stores",
		Long: `ndb operates on the memory-mapped record stores that hold the constant
values of a source index.

It reports address space statistics, validates the block chain, decodes
records, and moves consistent snapshots between stores, files and archive
backends (local directory, S3 with an optional DynamoDB catalog, MinIO).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if a.storePath != "" {
				cfg.Store.Path = a.storePath
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./ndb.yaml)")
	flags.StringVarP(&a.storePath, "store", "s", "", "store file (overrides store.path)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newStatsCmd(a),
		newVerifyCmd(a),
		newDumpCmd(a),
		newPutCmd(a),
		newSnapshotCmd(a),
		newRestoreCmd(a),
		newArchiveCmd(a),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func (a *app) logger() (*ndb.Logger, error) {
	level, err := a.cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	if a.cfg.Log.Format == "json" {
		return ndb.NewJSONLogger(level), nil
	}
	return ndb.NewTextLogger(level), nil
}

// options translates the configuration into ndb options.
func (a *app) options() ([]ndb.Option, error) {
	logger, err := a.logger()
	if err != nil {
		return nil, err
	}
	compression, err := persistence.ParseCompression(a.cfg.Snapshot.Compression)
	if err != nil {
		return nil, err
	}

	s := a.cfg.Store
	opts := []ndb.Option{
		ndb.WithLogger(logger),
		ndb.WithCompression(compression),
	}
	if s.ChunkSize > 0 {
		opts = append(opts, ndb.WithChunkSize(s.ChunkSize))
	}
	if s.SchemaVersion > 0 {
		opts = append(opts, ndb.WithSchemaVersion(s.SchemaVersion))
	}
	if s.CapacityLimit > 0 {
		opts = append(opts, ndb.WithCapacityLimit(s.CapacityLimit))
	}
	if s.IOLimit > 0 {
		opts = append(opts, ndb.WithIOLimit(s.IOLimit))
	}
	if s.Workers > 0 {
		opts = append(opts, ndb.WithMaxBackgroundWorkers(s.Workers))
	}
	if s.RecoverUnclean {
		opts = append(opts, ndb.WithRecoverUnclean())
	}
	return opts, nil
}

// open opens the configured store. Read-only opens leave the file untouched.
func (a *app) open(readOnly bool) (*ndb.Index, error) {
	opts, err := a.options()
	if err != nil {
		return nil, err
	}
	if readOnly {
		opts = append(opts, ndb.WithReadOnly())
	}
	idx, err := ndb.Open(a.cfg.Store.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.Store.Path, err)
	}
	return idx, nil
}

// withIndex runs fn against the configured store and closes it afterwards.
func (a *app) withIndex(readOnly bool, fn func(*ndb.Index) error) (err error) {
	idx, err := a.open(readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := idx.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(idx)
}
