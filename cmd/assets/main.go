package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-assets/internal/config"
	"github.com/joeblew999/plat-assets/internal/pmtiles"
	"github.com/joeblew999/plat-assets/internal/server"
	"github.com/joeblew999/plat-assets/internal/service"
)

// Options defines all CLI flags and env vars for the asset server.
// Flags: --host, --port, --data-dir, --web-dir, --layers
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, SERVICE_LAYERS
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir string `doc:"Directory for offline datasets" default:".data"`
	WebDir  string `doc:"Path to web/ directory (static files, fragment overrides)"`
	Layers  string `doc:"Layer catalog file" default:"configs/layers.yaml"`
}

func settings() *config.Settings {
	st, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return st
}

func newServer(opts *Options, st *config.Settings) (*server.Server, error) {
	return server.New(server.Config{
		Host:     opts.Host,
		Port:     fmt.Sprintf("%d", opts.Port),
		DataDir:  opts.DataDir,
		WebDir:   opts.WebDir,
		Layers:   opts.Layers,
		DBName:   "assets",
		Settings: st,
		Logger:   st.Logger(os.Stderr),
	})
}

func main() {
	_ = godotenv.Load(".env")

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// The callback runs for subcommands too, so nothing is opened
		// until the server actually starts.
		var (
			srv     *server.Server
			httpSrv *http.Server
		)
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(opts, settings())
			if err != nil {
				log.Fatalf("Startup error: %v", err)
			}
			httpSrv = &http.Server{Addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port), Handler: srv}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-assets API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Layers:  %s\n", opts.Layers)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			go srv.Run(ctx)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			cancel()
			if httpSrv != nil {
				_ = httpSrv.Shutdown(context.Background())
			}
			if srv != nil {
				_ = srv.Close()
			}
		})
	})

	cli.Root().Use = "assets"
	cli.Root().Short = "Asset layer relevance and selection service"
	cli.Root().Version = "0.3.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts, settings())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// layers subcommand: validate the catalog and print a summary
	cli.Root().AddCommand(&cobra.Command{
		Use:   "layers",
		Short: "Validate the layer catalog and list its layers",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			catalog, err := service.LoadCatalog(opts.Layers, server.NewRegistry())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid catalog %s:\n%v\n", opts.Layers, err)
				os.Exit(1)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVARIANT\tFORMAT\tBODY\tCATEGORIES\tPOLICY")
			for _, l := range catalog.List() {
				cats := strings.Join(slices.Concat(l.AssetCategory, l.AssetGroup), ", ")
				if l.AllCategories {
					cats = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					l.ID, l.Variant, l.Retrieval.Format, l.Body, cats, l.Policy)
			}
			tw.Flush()
		}),
	})

	// pack subcommand: build an offline archive from GeoJSON
	packCmd := &cobra.Command{
		Use:   "pack <input.geojson> <output.pmtiles>",
		Short: "Cut a GeoJSON file into a PMTiles archive for offline layers",
		Args:  cobra.ExactArgs(2),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			layer, _ := cmd.Flags().GetString("layer")
			minZoom, _ := cmd.Flags().GetInt("min-zoom")
			maxZoom, _ := cmd.Flags().GetInt("max-zoom")
			if err := pack(args[0], args[1], pmtiles.PackOptions{Layer: layer, MinZoom: minZoom, MaxZoom: maxZoom}); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Packed %s into %s (zoom %d-%d)\n", args[0], args[1], minZoom, maxZoom)
		}),
	}
	packCmd.Flags().StringP("layer", "l", "assets", "Vector tile layer name")
	packCmd.Flags().Int("min-zoom", 12, "Lowest zoom level to cut")
	packCmd.Flags().Int("max-zoom", 16, "Highest zoom level to cut")
	cli.Root().AddCommand(packCmd)

	cli.Run()
}

func pack(in, out string, opts pmtiles.PackOptions) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := pmtiles.Pack(f, fc, opts); err != nil {
		f.Close()
		os.Remove(out)
		return err
	}
	return f.Close()
}
