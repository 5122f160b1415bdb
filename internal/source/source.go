// Package source fetches asset-layer features from their configured data
// sources: remote GeoJSON/pin/vector-tile services, local PMTiles archives
// and DuckDB tables.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/pmtiles"
)

// Retrieval formats.
const (
	GeoJSON = "geojson"
	Pins    = "pins"
	MVT     = "mvt"
	PMTiles = "pmtiles"
	DuckDB  = "duckdb"
)

// Formats lists every format a Source can decode.
func Formats() []string {
	return []string{GeoJSON, Pins, MVT, PMTiles, DuckDB}
}

// Options configures a Source.
type Options struct {
	Client  *http.Client
	Timeout time.Duration
	// Rate and Burst limit requests per layer.
	Rate  float64
	Burst int
	Cache Cache
	// DB serves duckdb layers; nil disables them.
	DB *sql.DB
	// DataDir resolves relative pmtiles paths.
	DataDir string
	Logger  *slog.Logger
}

// Source implements asset.Fetcher for every supported format.
type Source struct {
	client  *http.Client
	timeout time.Duration
	rate    rate.Limit
	burst   int
	cache   Cache
	db      *sql.DB
	dataDir string
	log     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	archives map[string]*pmtiles.Reader
}

// New creates a Source.
func New(opts Options) *Source {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Rate <= 0 {
		opts.Rate = 5
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.Cache == nil {
		opts.Cache = NopCache{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{
		client:   opts.Client,
		timeout:  opts.Timeout,
		rate:     rate.Limit(opts.Rate),
		burst:    opts.Burst,
		cache:    opts.Cache,
		db:       opts.DB,
		dataDir:  opts.DataDir,
		log:      opts.Logger,
		limiters: make(map[string]*rate.Limiter),
		archives: make(map[string]*pmtiles.Reader),
	}
}

// Fetch retrieves the features of req.Layer inside req.Bound.
func (s *Source) Fetch(ctx context.Context, req asset.FetchRequest) ([]*asset.Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	l := req.Layer
	rt := l.Config().Retrieval
	start := time.Now()

	var (
		features []*asset.Feature
		err      error
	)
	switch rt.Format {
	case GeoJSON, Pins:
		features, err = s.fetchDocument(ctx, l, req.Bound)
	case MVT:
		features, err = s.fetchTiles(ctx, l, req.Bound, s.remoteTile)
	case PMTiles:
		features, err = s.fetchTiles(ctx, l, req.Bound, s.archiveTile)
	case DuckDB:
		features, err = s.fetchTable(ctx, l, req.Bound)
	default:
		err = fmt.Errorf("unknown format %q", rt.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.ID(), err)
	}
	s.log.Debug("fetched",
		slog.String("layer", l.ID()),
		slog.String("format", rt.Format),
		slog.Int("features", len(features)),
		slog.Duration("took", time.Since(start)))
	return features, nil
}

func (s *Source) limiter(layerID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[layerID]
	if !ok {
		lim = rate.NewLimiter(s.rate, s.burst)
		s.limiters[layerID] = lim
	}
	return lim
}

func (s *Source) archive(path string) (*pmtiles.Reader, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dataDir, path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rd, ok := s.archives[path]; ok {
		return rd, nil
	}
	rd, err := pmtiles.Open(path)
	if err != nil {
		return nil, err
	}
	s.archives[path] = rd
	return rd, nil
}

// Close releases open archives and the cache.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, rd := range s.archives {
		rd.Close()
		delete(s.archives, p)
	}
	return s.cache.Close()
}

var _ asset.Fetcher = (*Source)(nil)
