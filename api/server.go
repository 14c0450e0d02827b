// Package api provides the HTTP REST API server for the COT monitor.
//
// It exposes endpoints for instrument management, enriched positioning
// series, chart annotations, CSV export, press releases, and WebSocket
// event streaming.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mwcapital/COT-Monitor/internal/analysis/cot"
	"github.com/mwcapital/COT-Monitor/internal/config"
	"github.com/mwcapital/COT-Monitor/internal/datasource"
	"github.com/mwcapital/COT-Monitor/internal/instruments"
	"github.com/mwcapital/COT-Monitor/pkg/models"
	"github.com/mwcapital/COT-Monitor/pkg/utils"
)

// SeriesFetcher supplies raw weekly series; satisfied by the datasource
// backends and by test stubs.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, contractCode, typeCategory string) (*models.Series, error)
}

// ReleaseFetcher supplies recent press releases.
type ReleaseFetcher interface {
	Fetch(ctx context.Context, limit int) ([]models.Release, error)
}

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	store    *instruments.Store
	fetcher  SeriesFetcher
	releases ReleaseFetcher
	wsHub    *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, store *instruments.Store, fetcher SeriesFetcher, releases ReleaseFetcher) *Server {
	srv := &Server{
		cfg:      cfg,
		store:    store,
		fetcher:  fetcher,
		releases: releases,
		wsHub:    NewWSHub(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Instruments
		r.Get("/instruments", s.handleListInstruments)
		r.Post("/instruments", s.handleAddInstrument)
		r.Delete("/instruments/{name}", s.handleRemoveInstrument)

		// Positioning data
		r.Get("/cot/{code}", s.handleSeries)
		r.Get("/cot/{code}/annotations", s.handleAnnotations)
		r.Get("/cot/{code}/export", s.handleExport)

		// Publications
		r.Get("/releases", s.handleReleases)

		// Configuration
		r.Get("/config/keys", s.handleConfigKeys)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SeriesResponse is the payload for GET /api/v1/cot/{code}.
type SeriesResponse struct {
	Instrument  string               `json:"instrument,omitempty"`
	Schema      models.Schema        `json:"schema"`
	Columns     []string             `json:"columns"`
	PeriodCount int                  `json:"period_count"`
	StartDate   string               `json:"start_date"`
	EndDate     string               `json:"end_date"`
	Records     []models.Observation `json:"records"`
}

// AnnotationsResponse is the payload for GET /api/v1/cot/{code}/annotations.
type AnnotationsResponse struct {
	PeriodCount int                 `json:"period_count"`
	Suppressed  bool                `json:"suppressed"`
	Annotations []models.Annotation `json:"annotations"`
	Hover       map[string][]string `json:"hover,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := utils.NowEastern()
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":         "ok",
			"version":        "dev",
			"latest_report":  utils.FormatDate(utils.LatestReleasedReportDate(now)),
			"is_release_day": utils.IsReleaseDay(now),
		},
	})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.store.List(),
	})
}

func (s *Server) handleAddInstrument(w http.ResponseWriter, r *http.Request) {
	var inst instruments.Instrument
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.Add(inst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "instrument_added",
		Data: map[string]interface{}{"name": inst.Name, "contract_code": inst.ContractCode},
	})

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    inst,
	})
}

func (s *Server) handleRemoveInstrument(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "instrument name is required")
		return
	}
	if err := s.store.Remove(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"removed": name},
	})
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	windowed, count, err := s.enrichedWindow(r)
	if err != nil {
		writeSeriesError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: SeriesResponse{
			Instrument:  windowed.Name,
			Schema:      windowed.Schema,
			Columns:     windowed.Columns,
			PeriodCount: count,
			StartDate:   utils.FormatDate(windowed.StartDate()),
			EndDate:     utils.FormatDate(windowed.EndDate()),
			Records:     windowed.Observations,
		},
	})
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	windowed, count, err := s.enrichedWindow(r)
	if err != nil {
		writeSeriesError(w, err)
		return
	}

	columns := queryColumns(r, windowed)
	anns := cot.BuildAnnotations(windowed, columns)

	resp := AnnotationsResponse{
		PeriodCount: count,
		Suppressed:  count > cot.AnnotationPeriodLimit,
		Annotations: anns,
	}
	if r.URL.Query().Get("hover") == "true" {
		resp.Hover = make(map[string][]string, len(columns))
		for _, col := range columns {
			resp.Hover[col] = cot.HoverTexts(windowed, col)
		}
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    resp,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	windowed, _, err := s.enrichedWindow(r)
	if err != nil {
		writeSeriesError(w, err)
		return
	}

	columns := queryColumns(r, windowed)
	filename := fmt.Sprintf("cot_%s_%s.csv", chi.URLParam(r, "code"), utils.FormatDate(windowed.EndDate()))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := cot.ExportCSV(w, windowed, columns); err != nil {
		log.Printf("CSV export failed: %v", err)
	}
}

func (s *Server) handleReleases(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	releases, err := s.releases.Fetch(ctx, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    releases,
	})
}

func (s *Server) handleConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}

// ============================================================
// Helpers
// ============================================================

// enrichedWindow fetches, derives, and windows the series addressed by
// the request. An empty start/end selects the full history.
func (s *Server) enrichedWindow(r *http.Request) (*models.EnrichedSeries, int, error) {
	code := chi.URLParam(r, "code")
	if code == "" {
		return nil, 0, fmt.Errorf("contract code is required")
	}
	typeCategory := r.URL.Query().Get("type")
	if typeCategory != "" {
		if err := cot.ValidateTypeCategory(typeCategory); err != nil {
			return nil, 0, err
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	series, err := s.fetcher.FetchSeries(ctx, code, typeCategory)
	if err != nil {
		return nil, 0, err
	}
	if inst, ok := s.store.ByCode(code); ok && series.Name == "" {
		series.Name = inst.Name
	}

	es, err := cot.DeriveMetrics(series)
	if err != nil {
		return nil, 0, err
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "series_fetched",
		Data: map[string]interface{}{
			"contract_code": code,
			"type":          typeCategory,
			"records":       es.Len(),
		},
	})

	start, end := es.StartDate(), es.EndDate()
	q := r.URL.Query()
	if v := q.Get("start"); v != "" {
		if start, err = utils.ParseDate(v); err != nil {
			return nil, 0, fmt.Errorf("invalid start date; use YYYY-MM-DD")
		}
	}
	if v := q.Get("end"); v != "" {
		if end, err = utils.ParseDate(v); err != nil {
			return nil, 0, fmt.Errorf("invalid end date; use YYYY-MM-DD")
		}
	}

	return cot.Window(es, start, end)
}

// queryColumns resolves the columns parameter, defaulting to the
// derived net-position columns present in the window.
func queryColumns(r *http.Request, es *models.EnrichedSeries) []string {
	if raw := r.URL.Query().Get("columns"); raw != "" {
		var cols []string
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cols = append(cols, c)
			}
		}
		return cols
	}
	var cols []string
	for _, m := range cot.Categories(es.Schema) {
		if es.HasColumn(m.NetColumn) {
			cols = append(cols, m.NetColumn)
		}
	}
	if len(cols) == 0 && es.HasColumn("open_interest") {
		cols = []string{"open_interest"}
	}
	return cols
}

// writeSeriesError maps fetch and derivation failures onto HTTP codes.
func writeSeriesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datasource.ErrSeriesNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cot.ErrInvalidDateRange),
		errors.Is(err, cot.ErrNonMonotonicDates),
		errors.Is(err, cot.ErrEmptySeries),
		errors.Is(err, datasource.ErrNotSupported):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, datasource.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		var httpErr *datasource.ErrHTTP
		if errors.As(err, &httpErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
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
}

// WSClient represents a single WebSocket connection. A client starts
// with no contract filter and receives every event; subscribing narrows
// contract-tagged events to the named contract codes.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage

	mu        sync.Mutex
	contracts map[string]bool
}

// setContracts replaces the client's contract filter. An empty list
// clears the filter.
func (c *WSClient) setContracts(codes []string) {
	filter := make(map[string]bool, len(codes))
	for _, code := range codes {
		if code = strings.TrimSpace(code); code != "" {
			filter[code] = true
		}
	}
	c.mu.Lock()
	if len(filter) == 0 {
		c.contracts = nil
	} else {
		c.contracts = filter
	}
	c.mu.Unlock()
}

// wants reports whether the client's filter admits the message. Events
// without a contract code always pass.
func (c *WSClient) wants(msg WSMessage) bool {
	code := messageContract(msg)
	if code == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contracts == nil || c.contracts[code]
}

// messageContract extracts the contract code carried by a series event.
func messageContract(msg WSMessage) string {
	data, ok := msg.Data.(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := data["contract_code"].(string)
	return code
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the hub event loop.
func (h *WSHub) Run() {
	for {
		select {
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
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg) {
					continue
				}
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

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		// Drop message if broadcast channel is full
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *WSHub) Register(client *WSClient) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	h.unregister <- client
}
