package hnswtag

import (
	"fmt"
	"log/slog"

	"github.com/hupe1980/hnswtag/distance"
	"github.com/hupe1980/hnswtag/persistence"
)

// Config is the flat, serializable form of the index options.
// The CLI fills it from flags, environment and config files.
type Config struct {
	Space          string `mapstructure:"space"`
	Dimension      int    `mapstructure:"dimension"`
	Capacity       int    `mapstructure:"capacity"`
	M              int    `mapstructure:"m"`
	EFConstruction int    `mapstructure:"ef_construction"`
	EF             int    `mapstructure:"ef"`
	Seed           int64  `mapstructure:"seed"`
	NumThreads     int    `mapstructure:"num_threads"`
	TaggedM        int    `mapstructure:"tagged_m"`
	MaxSubgraphs   int    `mapstructure:"max_subgraphs"`
	LazySubgraphs  bool   `mapstructure:"lazy_subgraphs"`
	Compression    string `mapstructure:"compression"`
	LogLevel       string `mapstructure:"log_level"`
}

// DefaultConfig returns the configuration matching the package defaults.
func DefaultConfig() Config {
	return Config{
		Space:          distance.SpaceL2.String(),
		M:              DefaultM,
		EFConstruction: DefaultEFConstruction,
		EF:             DefaultEF,
		Seed:           DefaultSeed,
		TaggedM:        DefaultTaggedM,
		MaxSubgraphs:   DefaultMaxSubgraphs,
		LazySubgraphs:  true,
		Compression:    persistence.CompressionNone.String(),
		LogLevel:       "warn",
	}
}

// SpaceValue parses the configured distance space.
func (c Config) SpaceValue() (distance.Space, error) {
	s, err := distance.ParseSpace(c.Space)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return s, nil
}

// Options converts the configuration into options for New and Load.
func (c Config) Options() ([]Option, error) {
	comp, err := persistence.ParseCompression(c.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("%w: log level %q", ErrInvalidArgument, c.LogLevel)
	}

	opts := []Option{
		WithM(c.M),
		WithEFConstruction(c.EFConstruction),
		WithEF(c.EF),
		WithSeed(c.Seed),
		WithNumThreads(c.NumThreads),
		WithTaggedM(c.TaggedM),
		WithMaxSubgraphs(c.MaxSubgraphs),
		WithLazySubgraphs(c.LazySubgraphs),
		WithCompression(comp),
		WithLogLevel(level),
	}
	if c.Capacity > 0 {
		opts = append(opts, WithCapacity(c.Capacity))
	}
	return opts, nil
}
