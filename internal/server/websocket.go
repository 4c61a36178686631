package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
)

const (
	// writeTimeout bounds one update or keep-alive write, and how long a
	// departing tab waits for the hub to take note.
	writeTimeout = 10 * time.Second

	// keepAlivePeriod is how often an idle tab is pinged so proxies keep
	// the connection open.
	keepAlivePeriod = 30 * time.Second

	// viewerQueue is how many updates may wait for a slow tab before the
	// hub drops it. The page reconnects on its own.
	viewerQueue = 16
)

// viewer is one browser tab waiting for registry changes.
type viewer struct {
	conn *websocket.Conn
	// target is the component the tab previews, or "" for the index,
	// which hears about every component.
	target string
	queue  chan []byte
}

func (v *viewer) wants(name string) bool {
	return v.target == "" || v.target == name
}

// update is an encoded UpdateMessage and the component it is about.
type update struct {
	target  string
	payload []byte
}

// handleWebSocket holds a tab's connection open for as long as the tab
// stays, writing the updates the hub queues for it.
func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	target := r.URL.Query().Get("component")
	if target != "" {
		if err := validateComponentName(target); err != nil {
			http.Error(w, fmt.Sprintf("Invalid component name: %v", err), http.StatusBadRequest)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// checkOrigin already applied the configured list.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// Tabs never send anything; CloseRead answers control frames and ends
	// ctx when the tab closes.
	ctx := conn.CloseRead(r.Context())
	v := &viewer{conn: conn, target: target, queue: make(chan []byte, viewerQueue)}

	select {
	case s.joins <- v:
	case <-ctx.Done():
		return
	}
	defer s.leave(v)

	s.serveViewer(ctx, v)
}

// serveViewer writes queued updates and keep-alive pings until the tab
// leaves or the hub closes its queue.
func (s *PreviewServer) serveViewer(ctx context.Context, v *viewer) {
	ticker := time.NewTicker(keepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case payload, ok := <-v.queue:
			if !ok {
				v.conn.Close(websocket.StatusGoingAway, "preview closed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := v.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.logger.Debug(ctx, "update not delivered", "component", v.target, "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := v.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *PreviewServer) leave(v *viewer) {
	select {
	case s.leaves <- v:
	case <-time.After(writeTimeout):
	}
}

// checkOrigin accepts the server's own address, loopback on the same port,
// and the configured allowed origins.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	own := []string{
		s.config.Address(),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
	for _, host := range own {
		if originURL.Host == host {
			return true
		}
	}

	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// runReloadHub owns the set of open tabs. It admits and drops tabs and
// hands each registry change to the tabs previewing that component.
func (s *PreviewServer) runReloadHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.dropViewers()
			return

		case v := <-s.joins:
			s.viewersMutex.Lock()
			s.viewers[v] = struct{}{}
			count := len(s.viewers)
			s.viewersMutex.Unlock()
			s.logger.Debug(ctx, "preview tab joined", "component", v.target, "viewers", count)

		case v := <-s.leaves:
			s.viewersMutex.Lock()
			s.drop(v)
			count := len(s.viewers)
			s.viewersMutex.Unlock()
			s.logger.Debug(ctx, "preview tab left", "component", v.target, "viewers", count)

		case u := <-s.updates:
			s.viewersMutex.Lock()
			for v := range s.viewers {
				if !v.wants(u.target) {
					continue
				}
				select {
				case v.queue <- u.payload:
				default:
					s.logger.Debug(ctx, "preview tab dropped, too far behind", "component", v.target)
					s.drop(v)
				}
			}
			s.viewersMutex.Unlock()
		}
	}
}

// drop forgets v and closes its queue. Callers hold viewersMutex.
func (s *PreviewServer) drop(v *viewer) {
	if _, ok := s.viewers[v]; ok {
		delete(s.viewers, v)
		close(v.queue)
	}
}

func (s *PreviewServer) dropViewers() {
	s.viewersMutex.Lock()
	defer s.viewersMutex.Unlock()
	for v := range s.viewers {
		s.drop(v)
	}
}

// ViewerCount returns the number of open preview tabs.
func (s *PreviewServer) ViewerCount() int {
	s.viewersMutex.RLock()
	defer s.viewersMutex.RUnlock()
	return len(s.viewers)
}
