// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/ttbt-io/lanekeeper/backend/bowling"
)

func generateETag(data []byte) string {
	return fmt.Sprintf("\"%x\"", sha256.Sum256(data))
}

func hubBusyResponse(w http.ResponseWriter, retryAfter string) {
	w.Header().Set("Retry-After", retryAfter)
	http.Error(w, "Too Many Requests: Server is busy", http.StatusTooManyRequests)
}

func parsePagination(r *http.Request) (int, int, string, string, string) {
	limit := 50
	offset := 0
	sortBy := r.URL.Query().Get("sortBy")
	order := r.URL.Query().Get("order")
	query := r.URL.Query().Get("q")

	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if val, err := strconv.Atoi(o); err == nil {
			offset = val
		}
	}

	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset, sortBy, order, query
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	return items[offset:min(offset+limit, len(items))]
}

// listResponse is the body of the list endpoints.
type listResponse[T any] struct {
	Data []T `json:"data"`
	Meta struct {
		Total  int `json:"total"`
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	} `json:"meta"`
}

// StatusReport is the body of /api/status.
type StatusReport struct {
	Games      int           `json:"games"`
	Players    int           `json:"players"`
	ActiveHubs int           `json:"activeHubs"`
	Spectators int64         `json:"spectators"`
	DirtyGames int           `json:"dirtyGames"`
	Metrics    MetricsReport `json:"metrics"`
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, ErrUnknownPlayer):
		http.Error(w, "Unprocessable Entity: "+err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, bowling.ErrWrongTurn),
		errors.Is(err, bowling.ErrAlreadyStarted),
		errors.Is(err, bowling.ErrGameComplete):
		http.Error(w, "Conflict: "+err.Error(), http.StatusConflict)
	case errors.Is(err, bowling.ErrInvalidShot),
		errors.Is(err, ErrMalformedFrame),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, bowling.ErrNoPlayers),
		errors.Is(err, bowling.ErrDuplicatePlayer),
		errors.Is(err, errTooManyPlayers):
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Internal Server Error: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// writeJSON encodes v with an ETag, answering 304 when the client already
// has it.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("Internal Server Error during JSON Marshal: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	writeData(w, r, status, data)
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data []byte) {
	etag := generateETag(data)
	if status == http.StatusOK && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// Options represent server options.
type Options struct {
	Addr    string
	Cert    *tls.Certificate
	DataDir string
	Debug   bool

	// SyncWrites saves every frame to disk as it is posted. Otherwise games
	// are flushed every FlushInterval and on shutdown.
	SyncWrites    bool
	FlushInterval time.Duration

	// ForceRebuild rebuilds the registry indices from the data files.
	ForceRebuild bool

	Storage     *storage.Storage
	GameStore   *GameStore
	PlayerStore *PlayerStore
	Registry    *Registry
	Metrics     *Metrics
	Listener    net.Listener
}

func (opts Options) withDefaults() Options {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}
	if opts.GameStore == nil {
		opts.GameStore = NewGameStore(opts.DataDir, opts.Storage)
		opts.GameStore.Debug = opts.Debug
	}
	if opts.PlayerStore == nil {
		opts.PlayerStore = NewPlayerStore(opts.DataDir, opts.Storage)
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry(opts.GameStore, opts.PlayerStore, opts.ForceRebuild)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return opts
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server
	store      *GameStore
	registry   *Registry
	stopFlush  chan struct{}
	flushDone  chan struct{}
}

// Shutdown stops the HTTP server, then writes out every game still held in
// memory.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []string

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http: %v", err))
	}
	if s.stopFlush != nil {
		close(s.stopFlush)
		<-s.flushDone
	}
	s.registry.StopGC()
	if err := s.store.FlushAll(); err != nil {
		errs = append(errs, fmt.Sprintf("flush: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, ", "))
	}
	return nil
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	opts = opts.withDefaults()
	_, handler := NewServerHandler(opts)

	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}
	if opts.Cert != nil {
		httpServer.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{*opts.Cert},
		}
	}

	s := &Server{
		httpServer: httpServer,
		store:      opts.GameStore,
		registry:   opts.Registry,
	}

	opts.Registry.StartGC()
	if !opts.SyncWrites {
		s.stopFlush = make(chan struct{})
		s.flushDone = make(chan struct{})
		go s.flushLoop(opts.FlushInterval)
	}

	go func() {
		var err error
		if opts.Listener != nil {
			if httpServer.TLSConfig != nil {
				log.Printf("Starting HTTPS server on provided listener %s...", opts.Listener.Addr())
				err = httpServer.ServeTLS(opts.Listener, "", "")
			} else {
				log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
				err = httpServer.Serve(opts.Listener)
			}
		} else {
			log.Printf("Server starting on port %s...\n", opts.Addr)
			if httpServer.TLSConfig != nil {
				err = httpServer.ListenAndServeTLS("", "")
			} else {
				log.Println("Starting HTTP server...")
				err = httpServer.ListenAndServe()
			}
		}

		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return s, nil
}

func (s *Server) flushLoop(interval time.Duration) {
	defer close(s.flushDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.store.FlushAll(); err != nil {
				log.Printf("Periodic flush failed: %v", err)
			}
		case <-s.stopFlush:
			return
		}
	}
}

// NewServerHandler creates and configures the HTTP handler for the server.
func NewServerHandler(opts Options) (*HubManager, http.Handler) {
	opts = opts.withDefaults()
	store := opts.GameStore
	players := opts.PlayerStore
	registry := opts.Registry
	metrics := opts.Metrics

	debugf := func(string, ...any) {}
	if opts.Debug {
		debugf = func(f string, a ...any) {
			log.Printf("[DEBUG BACKEND] "+f, a...)
		}
	}

	hm := NewHubManager(store, registry, metrics)
	hm.SyncWrites = opts.SyncWrites
	hm.debugf = debugf

	// hubCall runs req on the game's hub and waits for the answer. On failure
	// the response has already been written.
	hubCall := func(w http.ResponseWriter, r *http.Request, gameId string, req HubRequest, retryAfter string) (HubResponse, bool) {
		if !registry.GameExists(gameId) {
			http.Error(w, "Not Found: Game not found", http.StatusNotFound)
			return HubResponse{}, false
		}
		reply := make(chan HubResponse, 1)
		req.Reply = reply
		if _, err := hm.Submit(gameId, req); err != nil {
			hubBusyResponse(w, retryAfter)
			return HubResponse{}, false
		}
		select {
		case resp := <-reply:
			if resp.Error != nil {
				writeError(w, resp.Error)
				return resp, false
			}
			return resp, true
		case <-r.Context().Done():
			return HubResponse{}, false
		}
	}

	gameIdFrom := func(w http.ResponseWriter, r *http.Request) (string, bool) {
		gameId := r.PathValue("gameId")
		if !isValidUUID(gameId) {
			http.Error(w, "Bad Request: gameId is missing or invalid", http.StatusBadRequest)
			return "", false
		}
		return gameId, true
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/player", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		p, err := players.CreatePlayer(req.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		registry.UpdatePlayer(*p)
		debugf("Created player %s (%q)", p.ID, p.Name)
		writeJSON(w, r, http.StatusCreated, p)
	})

	mux.HandleFunc("GET /api/player/{playerId}", func(w http.ResponseWriter, r *http.Request) {
		playerId := r.PathValue("playerId")
		if !isValidUUID(playerId) {
			http.Error(w, "Bad Request: playerId is missing or invalid", http.StatusBadRequest)
			return
		}
		p, err := registry.GetPlayer(playerId)
		if err != nil {
			if os.IsNotExist(err) {
				http.Error(w, "Not Found: Player not found", http.StatusNotFound)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, r, http.StatusOK, p)
	})

	mux.HandleFunc("GET /api/list-players", func(w http.ResponseWriter, r *http.Request) {
		limit, offset, _, order, query := parsePagination(r)
		all := registry.ListPlayers(order, query)

		resp := listResponse[Player]{Data: paginate(all, limit, offset)}
		if resp.Data == nil {
			resp.Data = make([]Player, 0)
		}
		resp.Meta.Total = len(all)
		resp.Meta.Offset = offset
		resp.Meta.Limit = limit
		writeJSON(w, r, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/game", func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, err)
			return
		}
		roster, err := registry.ResolvePlayers(req.Players)
		if err != nil {
			writeError(w, err)
			return
		}
		g, err := NewGameRecord(roster)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := store.SaveGame(g); err != nil {
			writeError(w, err)
			return
		}
		registry.UpdateGame(*g)
		debugf("Created game %s with players %v", g.ID, g.Players)
		writeJSON(w, r, http.StatusCreated, g)
	})

	mux.HandleFunc("GET /api/game/{gameId}", func(w http.ResponseWriter, r *http.Request) {
		gameId, ok := gameIdFrom(w, r)
		if !ok {
			return
		}
		resp, ok := hubCall(w, r, gameId, HubRequest{Type: ReqTypeHTTPLoad}, retryAfterLoad)
		if !ok {
			return
		}
		writeData(w, r, http.StatusOK, resp.Data)
	})

	mux.HandleFunc("GET /api/game/{gameId}/scorecard", func(w http.ResponseWriter, r *http.Request) {
		gameId, ok := gameIdFrom(w, r)
		if !ok {
			return
		}
		resp, ok := hubCall(w, r, gameId, HubRequest{Type: ReqTypeHTTPLoad}, retryAfterLoad)
		if !ok {
			return
		}
		engine, err := resp.Game.Engine()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, bowling.RenderScorecard(engine, resp.Game.Names()))
	})

	mux.HandleFunc("POST /api/game/{gameId}/player/{playerId}/frame", func(w http.ResponseWriter, r *http.Request) {
		gameId, ok := gameIdFrom(w, r)
		if !ok {
			return
		}
		if !registry.GameExists(gameId) {
			http.Error(w, "Not Found: Game not found", http.StatusNotFound)
			return
		}
		playerId := r.PathValue("playerId")
		if _, err := registry.LookupPlayer(playerId); err != nil {
			writeError(w, err)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err != nil {
			http.Error(w, "Bad Request: Body too large", http.StatusBadRequest)
			return
		}
		shots, err := decodeFrame(body)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, ok := hubCall(w, r, gameId, HubRequest{
			Type:     ReqTypePostFrame,
			PlayerID: playerId,
			Shots:    shots,
		}, retryAfterFrame)
		if !ok {
			return
		}
		writeData(w, r, http.StatusOK, resp.Data)
	})

	mux.HandleFunc("GET /api/list-games", func(w http.ResponseWriter, r *http.Request) {
		limit, offset, sortBy, order, query := parsePagination(r)
		ids := registry.ListGames(sortBy, order, query)

		resp := listResponse[GameMetadata]{Data: make([]GameMetadata, 0)}
		for _, id := range paginate(ids, limit, offset) {
			if m, ok := registry.getGameMeta(id); ok {
				resp.Data = append(resp.Data, m)
			}
		}
		resp.Meta.Total = len(ids)
		resp.Meta.Offset = offset
		resp.Meta.Limit = limit
		writeJSON(w, r, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /api/delete-game", func(w http.ResponseWriter, r *http.Request) {
		var data struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&data); err != nil {
			http.Error(w, "Bad Request: Malformed JSON", http.StatusBadRequest)
			return
		}
		gameId := data.ID
		if gameId == "" || !isValidUUID(gameId) {
			http.Error(w, "Bad Request: gameId is missing or invalid", http.StatusBadRequest)
			return
		}
		if _, ok := hubCall(w, r, gameId, HubRequest{Type: ReqTypeDelete}, retryAfterSave); !ok {
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Game %s deleted successfully", gameId)
	})

	mux.HandleFunc("GET /api/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hm, registry, w, r)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusReport{
			Games:      registry.CountTotalGames(),
			Players:    registry.CountTotalPlayers(),
			ActiveHubs: hm.ActiveHubs(),
			Spectators: hm.Spectators(),
			DirtyGames: store.DirtyCount(),
			Metrics:    metrics.Report(),
		})
	})

	handler := http.Handler(mux)
	handler = metricsMiddleware(metrics, handler)
	handler = loggingMiddleware(handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)

	return hm, handler
}

// cacheControlMiddleware keeps API responses out of shared caches.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=300, proxy-revalidate, no-transform")
		}
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs the method and URL path of every incoming HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
