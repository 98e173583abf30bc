package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ndb"
)

func newVerifyCmd(a *app) *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Validate the block chain of a store or the integrity of a snapshot",
		Long: `Validate walks every chunk of the store and checks block sizes, the free
lists and the header. With --snapshot it instead checks the checksum and
framing of a snapshot file without restoring it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if snapshot != "" {
				f, err := os.Open(snapshot)
				if err != nil {
					return err
				}
				defer f.Close()

				opts, err := a.options()
				if err != nil {
					return err
				}
				info, err := ndb.VerifySnapshot(cmd.Context(), f, opts...)
				if err != nil {
					return fmt.Errorf("verify %s: %w", snapshot, err)
				}
				fmt.Fprintf(out, "%s: ok (%s, image %d bytes, crc32c %#08x)\n",
					snapshot, info.Compression, info.ImageSize, info.Checksum)
				return nil
			}

			return a.withIndex(true, func(idx *ndb.Index) error {
				if err := idx.Validate(cmd.Context()); err != nil {
					return fmt.Errorf("verify %s: %w", a.cfg.Store.Path, err)
				}
				fmt.Fprintf(out, "%s: ok\n", a.cfg.Store.Path)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&snapshot, "snapshot", "", "verify a snapshot file instead of the store")
	return cmd
}
