// Package server serves live previews of fibre components.
//
// Component files under the configured scan paths are compiled into a
// registry and watched for changes. Each preview page renders a component
// with props taken from the query string. When a definition changes, the
// tabs previewing that component are told over a websocket and re-fetch
// the fragment; an open index reloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/fibre/internal/component"
	"github.com/conneroisu/fibre/internal/config"
	"github.com/conneroisu/fibre/internal/logging"
	"github.com/conneroisu/fibre/internal/scanner"
	"github.com/conneroisu/fibre/internal/watcher"
)

// PreviewServer serves components with live reload capability
type PreviewServer struct {
	config       *config.Config
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	viewers      map[*viewer]struct{}
	viewersMutex sync.RWMutex
	updates      chan update
	joins        chan *viewer
	leaves       chan *viewer
	registry     *component.Registry
	watcher      *watcher.FileWatcher
	scanner      *scanner.ComponentScanner
	logger       logging.Logger
	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a new preview server
func New(cfg *config.Config, logger logging.Logger) (*PreviewServer, error) {
	logger = logging.OrNop(logger)

	registry := component.NewRegistry(component.Config{
		Compiler: cfg.TemplateOptions(),
		Logger:   logger,
	})

	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &PreviewServer{
		config:   cfg,
		viewers:  make(map[*viewer]struct{}),
		updates:  make(chan update, 16),
		joins:    make(chan *viewer),
		leaves:   make(chan *viewer),
		registry: registry,
		watcher:  fileWatcher,
		scanner: scanner.NewComponentScanner(registry, scanner.Options{
			Extension:       cfg.Components.Extension,
			ExcludePatterns: cfg.Components.ExcludePatterns,
			Logger:          logger,
		}),
		logger: logger.WithComponent("server"),
	}, nil
}

// Registry returns the registry previews are rendered from.
func (s *PreviewServer) Registry() *component.Registry {
	return s.registry
}

// Handler returns the HTTP routes of the preview server.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/components", s.handleComponents)
	mux.HandleFunc("/component/", s.handleComponent)
	mux.HandleFunc("/render/", s.handleRender)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

// Start scans and watches the component paths, then serves until ctx is
// cancelled or the server fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	if err := s.scanner.ScanPaths(s.config.Components.ScanPaths); err != nil {
		s.logger.Warn(ctx, err, "initial scan reported errors")
	}
	s.logger.Info(ctx, "components loaded", "count", s.registry.Count())

	s.setupFileWatcher(ctx)

	go s.runScheduler(ctx)
	go s.runReloadHub(ctx)
	go s.forwardRegistryEvents(ctx, s.registry.Watch())

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "shutdown failed")
		}
	}()

	s.logger.Info(ctx, "preview server listening", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops the HTTP server and the file watcher.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if werr := s.watcher.Stop(); werr != nil {
			s.logger.Warn(ctx, werr, "stopping file watcher")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			err = server.Shutdown(ctx)
		}
	})
	return err
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.NoGitFilter)
	s.watcher.AddFilter(s.scanner.Matches)
	s.watcher.AddHandler(s.scanner.HandleChanges)

	for _, path := range s.config.Components.ScanPaths {
		if err := s.watcher.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "failed to watch path", "path", path)
		}
	}

	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "failed to start file watcher")
	}
}

// runScheduler runs the flushes components defer with MergeState until ctx
// is done.
func (s *PreviewServer) runScheduler(ctx context.Context) {
	if err := s.registry.Scheduler().Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn(ctx, err, "scheduler stopped")
	}
}

// forwardRegistryEvents turns registry changes into browser messages.
func (s *PreviewServer) forwardRegistryEvents(ctx context.Context, events <-chan component.Event) {
	defer s.registry.UnWatch(events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.notify(event)
		}
	}
}

func (s *PreviewServer) notify(event component.Event) {
	msgType := "reload"
	if event.Type == component.EventTypeRemoved {
		msgType = "removed"
	}

	message, err := json.Marshal(UpdateMessage{Type: msgType, Target: event.Name, Timestamp: event.Timestamp})
	if err != nil {
		s.logger.Error(context.Background(), err, "encoding update message")
		return
	}

	select {
	case s.updates <- update{target: event.Name, payload: message}:
	default:
		s.logger.Warn(context.Background(), nil, "update dropped, broadcast queue full", "component", event.Name)
	}
}
