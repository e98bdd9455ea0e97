// Package api provides the HTTP progress server for a sentiment run.
//
// It exposes the run counters and per-item states kept by the pipeline
// tracker, and streams every state change over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/phuslu/log"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/pipeline"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/web"
)

// Server is the HTTP progress server.
type Server struct {
	router  chi.Router
	cfg     config.StatusConfig
	tracker *pipeline.Tracker
	wsHub   *WSHub
	logger  *log.Logger
	version string
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for requests and WebSocket errors.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server over tracker and subscribes the WebSocket hub
// to its events.
func NewServer(cfg config.StatusConfig, tracker *pipeline.Tracker, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		wsHub:   NewWSHub(),
		logger:  &log.DefaultLogger,
		version: "dev",
		started: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	tracker.OnEvent(func(ev pipeline.Event) {
		s.wsHub.Broadcast(WSMessage{Type: ev.Type, Data: ev})
	})
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("progress server listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down progress server")
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/progress", s.handleProgress)
		r.Get("/items", s.handleItems)
		r.Get("/items/{date}/{symbol}", s.handleItem)
		r.Get("/pending", s.handlePending)
		r.Get("/ws", s.handleWebSocket)
	})

	// Live progress page
	if site, err := web.DistFS(); err != nil {
		s.logger.Warn().Err(err).Msg("progress page unavailable")
	} else {
		r.Handle("/*", http.FileServerFS(site))
	}

	return r
}

// requestLogger logs each request at debug level, 4xx at warn and 5xx at
// error.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := s.logger.Debug()
		switch {
		case status >= 500:
			entry = s.logger.Error()
		case status >= 400:
			entry = s.logger.Warn()
		}
		entry.
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// ============================================================
// Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ItemsResponse is the body of GET /api/v1/items.
type ItemsResponse struct {
	Count int                   `json:"count"`
	Items []pipeline.ItemStatus `json:"items"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":     "ok",
			"version":    s.version,
			"uptime":     time.Since(s.started).Round(time.Second).String(),
			"ws_clients": s.wsHub.ClientCount(),
		},
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.tracker.Progress()})
}

// handleItems lists item states, optionally filtered by ?state= and
// ?symbol= (comma separated).
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	states := splitParam(r.URL.Query().Get("state"))
	for st := range states {
		switch models.ItemState(st) {
		case models.StatePending, models.StateFetching, models.StateScoring, models.StateDone:
		default:
			writeError(w, http.StatusBadRequest, "unknown state: "+st)
			return
		}
	}
	symbols := splitParam(strings.ToUpper(r.URL.Query().Get("symbol")))

	items := []pipeline.ItemStatus{}
	for _, it := range s.tracker.Items() {
		if len(states) > 0 && !states[string(it.State)] {
			continue
		}
		if len(symbols) > 0 && !symbols[it.CompanyID] {
			continue
		}
		items = append(items, it)
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: ItemsResponse{Count: len(items), Items: items}})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	key := models.ItemKey(chi.URLParam(r, "date") + "/" + strings.ToUpper(chi.URLParam(r, "symbol")))
	st, ok := s.tracker.Item(key)
	if !ok {
		writeError(w, http.StatusNotFound, "item not found: "+string(key))
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: st})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	keys := s.tracker.Pending()
	if keys == nil {
		keys = []models.ItemKey{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: keys})
}

func splitParam(v string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub manages WebSocket connections and message broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	direct     chan directMessage
	done       chan struct{}
}

type directMessage struct {
	client *WSClient
	msg    WSMessage
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		direct:     make(chan directMessage, 16),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. It closes every client when ctx is done.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case dm := <-h.direct:
			h.mu.Lock()
			if h.clients[dm.client] {
				select {
				case dm.client.send <- dm.msg:
				default:
				}
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; disconnect
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients. It never
// blocks; the message is dropped when the queue is full.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// Direct queues a message for one client. Messages to clients that have
// already left are dropped.
func (h *WSHub) Direct(client *WSClient, msg WSMessage) {
	select {
	case h.direct <- directMessage{client: client, msg: msg}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *WSHub) Register(client *WSClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
