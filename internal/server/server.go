package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-assets/internal/api"
	"github.com/joeblew999/plat-assets/internal/asset"
	"github.com/joeblew999/plat-assets/internal/config"
	"github.com/joeblew999/plat-assets/internal/db"
	"github.com/joeblew999/plat-assets/internal/geo"
	"github.com/joeblew999/plat-assets/internal/policy"
	"github.com/joeblew999/plat-assets/internal/service"
	"github.com/joeblew999/plat-assets/internal/source"
	"github.com/joeblew999/plat-assets/internal/templates"
)

// sweepInterval is how often expired sessions are ended.
const sweepInterval = time.Minute

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and fragment overrides
	Layers  string // Path to the layer catalog
	// DBName names the DuckDB file under DataDir; empty keeps it in memory.
	DBName   string
	Settings *config.Settings
	Logger   *slog.Logger
}

// Server is the asset HTTP server.
type Server struct {
	config   Config
	log      *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	source   *source.Source
	sessions *service.Sessions
	services *api.Services
}

// NewRegistry returns a registry that knows every retrieval format and
// built-in policy.
func NewRegistry() *asset.Registry {
	reg := asset.NewRegistry(source.Formats()...)
	policy.Register(reg)
	return reg
}

// New creates a new asset server. The layer catalog must load; DuckDB and
// Redis are optional and only logged when unavailable.
func New(cfg Config) (*Server, error) {
	if cfg.Settings == nil {
		s, err := config.FromMap(map[string]string{})
		if err != nil {
			return nil, err
		}
		cfg.Settings = s
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	st := cfg.Settings

	catalog, err := service.LoadCatalog(cfg.Layers, NewRegistry())
	if err != nil {
		return nil, err
	}

	provider, err := geo.New(st.DisplayCRS)
	if err != nil {
		return nil, err
	}

	// Initialize DuckDB connection
	conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: cfg.DBName, Logger: log})
	if err != nil {
		log.Warn("duckdb unavailable", slog.String("error", err.Error()))
		conn = nil
	}

	var cache source.Cache
	if st.RedisURL != "" {
		rc, err := source.NewRedisCache(st.RedisURL, st.CacheTTL)
		if err == nil {
			if err = rc.Ping(context.Background()); err != nil {
				rc.Close()
			}
		}
		if err != nil {
			log.Warn("redis unavailable, using in-process cache", slog.String("error", err.Error()))
		} else {
			cache = rc
		}
	}
	if cache == nil {
		cache = source.NewMemoryCache(st.CacheSize, st.CacheTTL)
	}

	src := source.New(source.Options{
		Timeout: st.FetchTimeout,
		Rate:    st.FetchRate,
		Burst:   st.FetchBurst,
		Cache:   cache,
		DB:      conn,
		DataDir: cfg.DataDir,
		Logger:  log,
	})

	renderer := templates.Default()
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		r, err := templates.New(fragmentsDir)
		if err != nil {
			return nil, fmt.Errorf("fragment templates: %w", err)
		}
		renderer = r
	}

	sessions := service.NewSessions(catalog, service.SessionOptions{
		Geo:      provider,
		Fetcher:  src,
		Renderer: renderer,
		TTL:      st.SessionTTL,
		Logger:   log,
	})

	s := &Server{
		config:   cfg,
		log:      log,
		mux:      http.NewServeMux(),
		db:       conn,
		source:   src,
		sessions: sessions,
		services: &api.Services{
			Catalog:  catalog,
			Sessions: sessions,
			Datasets: service.NewDatasetService(cfg.DataDir, conn),
			Renderer: renderer,
			Logger:   log,
			DataDir:  cfg.DataDir,
			Formats:  source.Formats(),
		},
	}

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-assets API", api.Version)
	humaConfig.Info.Description = "Asset layer relevance and selection for problem reports: " +
		"which map layers apply to a category, what the user may select and where the report is routed."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())
	s.humaAPI = humago.New(s.mux, humaConfig)

	s.routes()
	log.Info("server ready",
		slog.Int("layers", len(catalog.List())),
		slog.String("display_crs", provider.Display()),
		slog.Bool("db", conn != nil))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Run sweeps expired sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx, sweepInterval)
}

// Close closes server resources.
func (s *Server) Close() error {
	var errs []error
	errs = append(errs, s.source.Close())
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services)

	// Static files for the report page
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/docs", http.StatusFound)
}
