package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/hnswtag"
	"github.com/hupe1980/hnswtag/blobstore"
	miniostore "github.com/hupe1980/hnswtag/blobstore/minio"
	"github.com/hupe1980/hnswtag/blobstore/s3"
	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/persistence"
)

const envPrefix = "HNSWTAG"

// app carries the per-invocation configuration shared by the subcommands.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "hnswtag",
		Short:         "Build and query HNSW indexes with tag-filtered sub-graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	def := hnswtag.DefaultConfig()
	f := root.PersistentFlags()
	f.StringP("config", "c", "", "path to config file")
	f.String("space", def.Space, "distance space: l2, cosine or ip")
	f.Int("m", def.M, "links per element")
	f.Int("ef-construction", def.EFConstruction, "construction candidate list size")
	f.Int("ef", def.EF, "query candidate list size")
	f.Int64("seed", def.Seed, "level generator seed")
	f.Int("num-threads", def.NumThreads, "worker pool size, 0 uses GOMAXPROCS")
	f.Int("tagged-m", def.TaggedM, "M of sub-graphs")
	f.Int("max-subgraphs", def.MaxSubgraphs, "sub-graphs kept in memory")
	f.Bool("lazy-subgraphs", def.LazySubgraphs, "build missing sub-graphs on first search")
	f.String("compression", def.Compression, "save compression: none, zstd or lz4")
	f.String("log-level", def.LogLevel, "log level: debug, info, warn or error")

	root.AddCommand(
		a.newBuildCmd(),
		a.newQueryCmd(),
		a.newTagCmd(),
		a.newInspectCmd(),
	)
	return root
}

// init applies defaults, the optional config file, HNSWTAG_* environment
// variables and flags, in increasing precedence.
func (a *app) init(cmd *cobra.Command) error {
	v := a.v
	def := hnswtag.DefaultConfig()
	v.SetDefault("space", def.Space)
	v.SetDefault("m", def.M)
	v.SetDefault("ef_construction", def.EFConstruction)
	v.SetDefault("ef", def.EF)
	v.SetDefault("seed", def.Seed)
	v.SetDefault("num_threads", def.NumThreads)
	v.SetDefault("tagged_m", def.TaggedM)
	v.SetDefault("max_subgraphs", def.MaxSubgraphs)
	v.SetDefault("lazy_subgraphs", def.LazySubgraphs)
	v.SetDefault("compression", def.Compression)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("s3.region", "")
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.secure", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Root().PersistentFlags().VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(fl.Name, "-", "_"), fl)
	})
	return bindErr
}

// config decodes the merged settings.
func (a *app) config() (hnswtag.Config, error) {
	var c hnswtag.Config
	if err := a.v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

// options returns the space and index options of the merged settings.
func (a *app) options() (distance.Space, []hnswtag.Option, error) {
	c, err := a.config()
	if err != nil {
		return 0, nil, err
	}
	space, err := c.SpaceValue()
	if err != nil {
		return 0, nil, err
	}
	opts, err := c.Options()
	if err != nil {
		return 0, nil, err
	}
	return space, opts, nil
}

// location is an index file path, an s3://bucket/key or a
// minio://bucket/key URI.
type location struct {
	store blobstore.BlobStore
	name  string
	path  string
}

func (a *app) resolve(ctx context.Context, uri string) (location, error) {
	if uri == "" {
		return location{}, errors.New("missing index location")
	}
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return location{path: uri}, nil
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return location{}, fmt.Errorf("invalid %s location %q", scheme, uri)
	}

	switch scheme {
	case "s3":
		store, err := s3.New(ctx, bucket, func(o *s3.Options) {
			o.Region = a.v.GetString("s3.region")
		})
		if err != nil {
			return location{}, err
		}
		return location{store: store, name: key}, nil
	case "minio":
		client, err := minio.New(a.v.GetString("minio.endpoint"), &minio.Options{
			Creds:  credentials.NewStaticV4(a.v.GetString("minio.access_key"), a.v.GetString("minio.secret_key"), ""),
			Secure: a.v.GetBool("minio.secure"),
		})
		if err != nil {
			return location{}, err
		}
		return location{store: miniostore.NewStore(client, bucket, ""), name: key}, nil
	default:
		return location{}, fmt.Errorf("unsupported scheme %q", scheme)
	}
}

// load reads an index. Its space and dimension come from the stored header.
func (a *app) load(ctx context.Context, loc location) (*hnswtag.Index, error) {
	_, opts, err := a.options()
	if err != nil {
		return nil, err
	}
	h, err := readHeader(ctx, loc)
	if err != nil {
		return nil, err
	}
	space, dim := distance.Space(h.Space), int(h.Dimension)
	if loc.store != nil {
		return hnswtag.LoadBlob(ctx, loc.store, loc.name, space, dim, opts...)
	}
	return hnswtag.LoadFile(loc.path, space, dim, opts...)
}

func readHeader(ctx context.Context, loc location) (persistence.Header, error) {
	if loc.store == nil {
		f, err := os.Open(loc.path)
		if err != nil {
			return persistence.Header{}, err
		}
		defer f.Close()
		h, _, err := persistence.ReadHeader(f)
		return h, err
	}

	blob, err := loc.store.Open(ctx, loc.name)
	if err != nil {
		return persistence.Header{}, err
	}
	defer blob.Close()
	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return persistence.Header{}, err
	}
	defer r.Close()
	h, _, err := persistence.ReadHeader(r)
	return h, err
}

func (a *app) save(ctx context.Context, idx *hnswtag.Index, loc location) error {
	if loc.store != nil {
		return idx.SaveBlob(ctx, loc.store, loc.name)
	}
	return idx.SaveFile(loc.path)
}
