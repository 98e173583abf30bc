package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/codec"
	"github.com/hupe1980/ndb/constant"
	"github.com/hupe1980/ndb/database"
)

func parseAddress(s string) (database.Address, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return database.Null, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return database.Address(v), nil
}

func selectCodec(name string, pretty bool) (codec.Codec, error) {
	if pretty {
		return codec.JSON{Indent: "  "}, nil
	}
	c, ok := codec.ByName(name)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %s)", name, strings.Join(codec.Names(), ", "))
	}
	return c, nil
}

func newDumpCmd(a *app) *cobra.Command {
	var (
		codecName string
		pretty    bool
		text      bool
	)

	cmd := &cobra.Command{
		Use:   "dump <addr>...",
		Short: "Decode constants and print them as JSON documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := selectCodec(codecName, pretty)
			if err != nil {
				return err
			}
			return a.withIndex(true, func(idx *ndb.Index) error {
				out := cmd.OutOrStdout()
				var line []byte
				for _, arg := range args {
					addr, err := parseAddress(arg)
					if err != nil {
						return err
					}
					v, err := idx.Decode(addr)
					if err != nil {
						return fmt.Errorf("decode %s: %w", addr, err)
					}
					if text {
						fmt.Fprintf(out, "%s\t%s\n", addr, constant.Format(v))
						continue
					}
					line, err = codec.AppendValue(c, line[:0], v)
					if err != nil {
						return err
					}
					if _, err := out.Write(append(line, '\n')); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&codecName, "codec", codec.Default.Name(), "output codec")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")
	cmd.Flags().BoolVar(&text, "text", false, "print the source form instead of JSON")
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	var codecName string

	cmd := &cobra.Command{
		Use:   "put [document]",
		Short: "Create a constant from a JSON document and print its address",
		Long: `Put decodes a constant document (as printed by dump) from the argument or,
if none is given, from standard input, stores it and prints its address.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := selectCodec(codecName, false)
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 1 {
				data = []byte(args[0])
			} else if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return err
			}

			v, err := codec.DecodeValue(c, data)
			if err != nil {
				return err
			}
			return a.withIndex(false, func(idx *ndb.Index) error {
				addr, err := idx.Create(v)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), addr)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&codecName, "codec", codec.Default.Name(), "input codec")
	return cmd
}
