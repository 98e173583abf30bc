package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/ndb"
	"github.com/hupe1980/ndb/blobstore"
	miniostore "github.com/hupe1980/ndb/blobstore/minio"
	s3store "github.com/hupe1980/ndb/blobstore/s3"
)

// archiver builds an Archiver for the configured backend.
func (a *app) archiver(ctx context.Context) (*ndb.Archiver, error) {
	opts, err := a.options()
	if err != nil {
		return nil, err
	}

	cfg := a.cfg.Archive
	switch cfg.Backend {
	case "local":
		return ndb.NewArchiver(blobstore.NewLocalStore(cfg.Local.Dir), nil, opts...), nil

	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, errors.New("archive.s3.bucket is required")
		}
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.S3.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		store := s3store.NewStore(awss3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.Prefix)

		var catalog blobstore.Catalog
		if cfg.S3.Table != "" {
			catalog = s3store.NewCatalog(dynamodb.NewFromConfig(awsCfg), cfg.S3.Table)
		}
		return ndb.NewArchiver(store, catalog, opts...), nil

	case "minio":
		if cfg.MinIO.Endpoint == "" || cfg.MinIO.Bucket == "" {
			return nil, errors.New("archive.minio.endpoint and archive.minio.bucket are required")
		}
		client, err := miniogo.New(cfg.MinIO.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return ndb.NewArchiver(miniostore.NewStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil, opts...), nil

	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// storeID returns the id given as argument or, without one, the id of the
// configured store.
func (a *app) storeID(args []string) (uuid.UUID, error) {
	if len(args) > 0 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid store id %q: %w", args[0], err)
		}
		return id, nil
	}
	var id uuid.UUID
	err := a.withIndex(true, func(idx *ndb.Index) error {
		id = idx.Stats().ID
		return nil
	})
	return id, err
}

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Push and pull snapshots to and from the configured archive backend",
	}
	cmd.AddCommand(newArchivePushCmd(a), newArchiveListCmd(a), newArchivePullCmd(a))
	return cmd
}

func newArchivePushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload a snapshot of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ar, err := a.archiver(cmd.Context())
			if err != nil {
				return err
			}
			return a.withIndex(true, func(idx *ndb.Index) error {
				e, err := ar.Push(cmd.Context(), idx)
				if err != nil {
					if ndb.IsConflict(err) {
						return fmt.Errorf("push: another snapshot was committed concurrently, retry: %w", err)
					}
					return fmt.Errorf("push: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s (version %d, %s)\n", e.Name, e.Version, humanize.IBytes(uint64(e.Size)))
				return nil
			})
		},
	}
}

func newArchiveListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [store-id]",
		Short: "List archived snapshots, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.storeID(args)
			if err != nil {
				return err
			}
			ar, err := a.archiver(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := ar.List(cmd.Context(), id)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSIZE\tCREATED")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Version, e.Name, humanize.IBytes(uint64(e.Size)), humanize.Time(e.Created))
			}
			return w.Flush()
		},
	}
}

func newArchivePullCmd(a *app) *cobra.Command {
	var version uint64

	cmd := &cobra.Command{
		Use:   "pull <store-id>",
		Short: "Download an archived snapshot and restore it as the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.storeID(args)
			if err != nil {
				return err
			}
			ar, err := a.archiver(cmd.Context())
			if err != nil {
				return err
			}

			entry, err := ar.Latest(cmd.Context(), id)
			if err != nil {
				return err
			}
			if version != 0 && version != entry.Version {
				entries, err := ar.List(cmd.Context(), id)
				if err != nil {
					return err
				}
				entry = blobstore.Entry{}
				for _, e := range entries {
					if e.Version == version {
						entry = e
						break
					}
				}
				if entry.Name == "" {
					return fmt.Errorf("version %d of %s: %w", version, id, ndb.ErrNotFound)
				}
			}

			if _, err := ar.Pull(cmd.Context(), entry, a.cfg.Store.Path); err != nil {
				return fmt.Errorf("pull: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s (version %d)\n",
				a.cfg.Store.Path, entry.Name, entry.Version)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&version, "version", 0, "archive version to pull (default latest)")
	return cmd
}
