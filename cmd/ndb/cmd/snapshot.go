package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/ndb"
)

func newSnapshotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <file>",
		Short: "Write a consistent snapshot of the store to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withIndex(true, func(idx *ndb.Index) error {
				info, err := idx.SaveSnapshot(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("snapshot: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %s (%s image, %s)\n",
					args[0], humanize.IBytes(uint64(info.Size)), humanize.IBytes(uint64(info.ImageSize)), info.Compression)
				return nil
			})
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the store with the contents of a snapshot file",
		Long: `Restore decodes the snapshot into a temporary file, validates it and
atomically replaces the configured store. A damaged snapshot leaves the
existing store untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options()
			if err != nil {
				return err
			}
			info, err := ndb.RestoreSnapshot(cmd.Context(), args[0], a.cfg.Store.Path, opts...)
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s (%s image)\n",
				a.cfg.Store.Path, args[0], humanize.IBytes(uint64(info.ImageSize)))
			return nil
		},
	}
}
