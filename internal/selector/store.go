// Package selector loads report templates ("selectors") by name.
//
// Built-in selectors are embedded in the binary. An optional directory of
// .json, .yaml or .yml files is layered on top; a file whose base name matches
// a built-in selector replaces it. The store is read once at construction and
// is immutable afterwards: Get always hands out a deep copy.
package selector

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"searchads-tap/internal/domain"
)

//go:embed selectors/*.json
var builtin embed.FS

// Built-in selector names.
const (
	ImpressionShare = "impression_share_selector"
	CampaignReports = "reports_selector"
)

// Store is an immutable set of named report templates.
type Store struct {
	templates map[string]domain.ReportTemplate
}

// NewStore loads the embedded selectors, then every selector file in dir
// (if dir is non-empty).
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{templates: make(map[string]domain.ReportTemplate)}

	sub, err := fs.Sub(builtin, "selectors")
	if err != nil {
		return nil, fmt.Errorf("embedded selectors: %w", err)
	}
	if err := s.loadFS(sub, "embedded", logger); err != nil {
		return nil, err
	}

	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("selector directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("selector directory: %s is not a directory", dir)
		}
		if err := s.loadFS(os.DirFS(dir), dir, logger); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Get returns a deep copy of the named selector.
func (s *Store) Get(name string) (domain.ReportTemplate, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return nil, domain.ErrNotFound("selector %q not found (available: %s)", name, strings.Join(s.Names(), ", "))
	}
	return tmpl.Clone(), nil
}

// Names returns the known selector names, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Store) loadFS(fsys fs.FS, origin string, logger *slog.Logger) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read selectors from %s: %w", origin, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return fmt.Errorf("read selector %s: %w", e.Name(), err)
		}
		tmpl, err := decode(data, ext)
		if err != nil {
			return fmt.Errorf("parse selector %s/%s: %w", origin, e.Name(), err)
		}

		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, exists := s.templates[name]; exists {
			logger.Info("selector overridden", "name", name, "origin", origin)
		}
		s.templates[name] = tmpl
	}
	return nil
}

func decode(data []byte, ext string) (domain.ReportTemplate, error) {
	var m map[string]any
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	}
	if m == nil {
		return nil, domain.ErrValidation("selector is empty")
	}
	return domain.ReportTemplate(m), nil
}
