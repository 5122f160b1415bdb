// Package templates renders the HTML fragments used for advisory messages
// and Datastar SSE patches.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

//go:embed fragments/*.html
var embedded embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	// raw marks configured HTML as safe; it never carries user input.
	"raw": func(s string) template.HTML { return template.HTML(s) },
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// Default returns a renderer over the embedded fragments.
func Default() *Renderer {
	tmpl := template.Must(parse(embedded, "fragments/*.html"))
	return &Renderer{templates: tmpl}
}

// New creates a renderer from the embedded fragments, overridden by any
// *.html files in fragmentsDir. An empty or missing dir yields Default.
func New(fragmentsDir string) (*Renderer, error) {
	r := Default()
	if fragmentsDir == "" {
		return r, nil
	}
	if err := r.Reload(fragmentsDir); err != nil {
		return nil, err
	}
	return r, nil
}

func parse(fsys fs.FS, pattern string) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, pattern)
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Reload re-parses the embedded fragments and then the overrides in
// fragmentsDir, so edited copies take effect without a restart.
func (r *Renderer) Reload(fragmentsDir string) error {
	tmpl, err := parse(embedded, "fragments/*.html")
	if err != nil {
		return err
	}
	matches, _ := filepath.Glob(filepath.Join(fragmentsDir, "*.html"))
	if len(matches) > 0 {
		if tmpl, err = tmpl.ParseFS(os.DirFS(fragmentsDir), "*.html"); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
