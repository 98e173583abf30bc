package cmd

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/constant"
)

func newStatsCmd(a *app) *cobra.Command {
	var counts bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show address space statistics of a store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withIndex(true, func(idx *ndb.Index) error {
				out := cmd.OutOrStdout()
				s := idx.Stats()

				fmt.Fprintf(out, "Store:      %s\n", s.Path)
				fmt.Fprintf(out, "  ID:       %s\n", s.ID)
				fmt.Fprintf(out, "  Schema:   v%d (fingerprint %#08x)\n", s.SchemaVersion, s.Fingerprint)
				fmt.Fprintf(out, "  Root:     %s\n", s.Root)
				fmt.Fprintf(out, "  Size:     %s in %d chunks of %s\n",
					humanize.IBytes(uint64(s.FileSize)), s.Chunks, humanize.IBytes(uint64(s.ChunkSize)))
				fmt.Fprintf(out, "  Used:     %s\n", humanize.IBytes(s.HighWater))
				fmt.Fprintf(out, "  Live:     %s blocks, %s\n",
					humanize.Comma(s.LiveBlocks), humanize.IBytes(uint64(s.LiveBytes)))
				fmt.Fprintf(out, "  Free:     %s blocks, %s\n",
					humanize.Comma(s.FreeBlocks), humanize.IBytes(uint64(s.FreeBytes)))

				if !counts {
					return nil
				}
				c, err := idx.Count()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Records:\n")
				fmt.Fprintf(out, "  constants:    %s\n", humanize.Comma(int64(c.Total())))
				for _, tag := range sortedTags(c.Constants) {
					fmt.Fprintf(out, "    %-10s  %s\n", tag, humanize.Comma(int64(c.Constants[tag])))
				}
				fmt.Fprintf(out, "  signatures:   %s\n", humanize.Comma(int64(c.Signatures)))
				fmt.Fprintf(out, "  pool strings: %s\n", humanize.Comma(int64(c.PoolStrings)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&counts, "counts", "c", false, "walk the store and count records per variant")
	return cmd
}

func sortedTags(m map[constant.Tag]int) []constant.Tag {
	tags := make([]constant.Tag, 0, len(m))
	for t := range m {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
