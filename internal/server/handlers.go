package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/fibre/internal/errors"
	"github.com/conneroisu/fibre/internal/state"
	"github.com/conneroisu/fibre/internal/template"
	"github.com/conneroisu/fibre/internal/version"
)

var errNotFound = stderrors.New("component not found")

// ComponentSummary is the /api/components view of one registered component.
type ComponentSummary struct {
	Name     string                `json:"name"`
	Template *template.Description `json:"template"`
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	templ.Handler(page("fibre components", "", indexBody(s.registry.Names()))).ServeHTTP(w, r)
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, map[string]any{
		"status":     "healthy",
		"components": s.registry.Count(),
		"viewers":    s.ViewerCount(),
		"version":    version.GetShortVersion(),
	})
}

func (s *PreviewServer) handleComponents(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	summaries := make([]ComponentSummary, 0, len(names))
	for _, name := range names {
		if f, ok := s.registry.Get(name); ok {
			summaries = append(summaries, ComponentSummary{Name: name, Template: template.Describe(f.Template())})
		}
	}
	s.writeJSON(w, r, summaries)
}

// handleComponent serves a full preview page for one component.
func (s *PreviewServer) handleComponent(w http.ResponseWriter, r *http.Request) {
	name, err := componentName(r.URL.Path, "/component/")
	if err != nil {
		http.Error(w, "Invalid component name: "+err.Error(), http.StatusBadRequest)
		return
	}

	fragment, err := s.render(name, r.URL.Query())
	if err != nil {
		s.renderError(w, r, name, err)
		return
	}

	templ.Handler(page(name, name, previewBody(name, fragment))).ServeHTTP(w, r)
}

// handleRender serves only the rendered component markup.
func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	name, err := componentName(r.URL.Path, "/render/")
	if err != nil {
		http.Error(w, "Invalid component name: "+err.Error(), http.StatusBadRequest)
		return
	}

	fragment, err := s.render(name, r.URL.Query())
	if err != nil {
		s.renderError(w, r, name, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(fragment)); err != nil {
		s.logger.Warn(r.Context(), err, "failed to write render response")
	}
}

// render instantiates a fresh component with props from the query string.
func (s *PreviewServer) render(name string, query url.Values) (string, error) {
	f, ok := s.registry.Get(name)
	if !ok {
		return "", errNotFound
	}

	props := make(map[string]any, len(query))
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := query[k]
		if err := state.Set(props, k, state.ParseValue(values[len(values)-1])); err != nil {
			return "", err
		}
	}

	c, err := f.New(props)
	if err != nil {
		return "", err
	}
	defer c.Destroy()

	return c.Render(), nil
}

func (s *PreviewServer) renderError(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case stderrors.Is(err, errNotFound):
		http.NotFound(w, r)
	case errors.CodeOf(err) == errors.ErrCodeConfigInvalid:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Warn(r.Context(), err, "render failed", "component", name)
		http.Error(w, fmt.Sprintf("Error rendering component %s: %v", name, err), http.StatusInternalServerError)
	}
}

func (s *PreviewServer) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "failed to write json response")
	}
}

// componentName extracts and validates the component name following prefix.
func componentName(path, prefix string) (string, error) {
	name := strings.Split(strings.TrimPrefix(path, prefix), "/")[0]
	return name, validateComponentName(name)
}

// validateComponentName accepts only names a component file can define.
func validateComponentName(name string) error {
	if name == "" {
		return stderrors.New("empty component name")
	}
	if len(name) > 100 {
		return stderrors.New("component name too long (max 100 characters)")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("character %q not allowed", r)
		}
	}
	if strings.Contains(name, "..") {
		return stderrors.New("path traversal attempt detected")
	}
	return nil
}
