package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-assets/internal/db"
)

// Dataset is a local file an offline layer can point at.
type Dataset struct {
	Name   string `json:"name" doc:"File name, relative to the data directory" example:"streetlights.pmtiles"`
	Size   string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	Format string `json:"format" doc:"Retrieval format able to read it" example:"pmtiles"`
}

// DatasetService lists local archives and DuckDB tables.
type DatasetService struct {
	dataDir string
	db      *sql.DB
}

// NewDatasetService creates a dataset service. conn may be nil.
func NewDatasetService(dataDir string, conn *sql.DB) *DatasetService {
	return &DatasetService{dataDir: dataDir, db: conn}
}

// extFormats maps file extensions to the retrieval format that reads them.
// Parquet and GeoJSON files are loaded into DuckDB first.
var extFormats = map[string]string{
	".pmtiles":    "pmtiles",
	".parquet":    "duckdb",
	".geoparquet": "duckdb",
	".geojson":    "duckdb",
}

// Files returns the data files under the data directory.
func (s *DatasetService) Files() ([]Dataset, error) {
	var out []Dataset
	err := filepath.WalkDir(s.dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.dataDir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		format, ok := extFormats[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(s.dataDir, path)
		out = append(out, Dataset{Name: filepath.ToSlash(rel), Size: formatSize(info.Size()), Format: format})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Tables returns the DuckDB tables, or nil without a database.
func (s *DatasetService) Tables(ctx context.Context) ([]db.Table, error) {
	if s.db == nil {
		return nil, nil
	}
	return db.Tables(ctx, s.db)
}

// Available reports whether DuckDB is configured.
func (s *DatasetService) Available() bool {
	return s.db != nil
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
