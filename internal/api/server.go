// Package api serves the live monitor state and the recorded history over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Go2NetTop/internal/config"
	"Go2NetTop/internal/engine/flowengine"
	"Go2NetTop/internal/query"
)

const defaultLimit = 50

// Monitor is the live state the server reads from. *flowengine.Engine
// implements it.
type Monitor interface {
	Flows() []flowengine.FlowView
	Hosts() []flowengine.HostView
	Totals() flowengine.Totals
}

// StreamMessage is one frame of the live flow stream.
type StreamMessage struct {
	Timestamp time.Time             `json:"timestamp"`
	Totals    flowengine.Totals     `json:"totals"`
	Flows     []flowengine.FlowView `json:"flows"`
}

// Server holds the dependencies for API handlers.
type Server struct {
	cfg      config.APIConfig
	monitor  Monitor
	querier  query.Querier
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
	http     *http.Server
}

// NewServer creates the API server. querier may be nil, in which case the
// history routes are not registered.
func NewServer(cfg config.APIConfig, monitor Monitor, querier query.Querier, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		monitor:  monitor,
		querier:  querier,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.http = &http.Server{Addr: cfg.ListenAddr, Handler: s.Router()}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/flows", s.flowsHandler).Methods("GET")
	v1.HandleFunc("/hosts", s.hostsHandler).Methods("GET")
	v1.HandleFunc("/totals", s.totalsHandler).Methods("GET")
	v1.HandleFunc("/stream", s.streamHandler).Methods("GET")
	if s.querier != nil {
		v1.HandleFunc("/history/top", s.historyTopHandler).Methods("POST")
		v1.HandleFunc("/history/trace", s.historyTraceHandler).Methods("POST")
	}

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	return r
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("API server starting on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("API server on %s failed: %v", s.http.Addr, err)
		}
	}()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("API server shutting down...")
	return s.http.Shutdown(ctx)
}

// listParams reads the sort and limit query parameters.
func listParams(r *http.Request) (flowengine.SortKey, int, error) {
	q := r.URL.Query()
	by, ok := flowengine.ParseSortKey(q.Get("sort"))
	if !ok {
		return "", 0, fmt.Errorf("unsupported sort: %s", q.Get("sort"))
	}
	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return "", 0, fmt.Errorf("invalid limit: %s", v)
		}
		limit = n
	}
	return by, limit, nil
}

func (s *Server) flowsHandler(w http.ResponseWriter, r *http.Request) {
	by, limit, err := listParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, flowengine.TopFlows(s.monitor.Flows(), by, limit))
}

func (s *Server) hostsHandler(w http.ResponseWriter, r *http.Request) {
	by, limit, err := listParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, flowengine.TopHosts(s.monitor.Hosts(), by, limit))
}

func (s *Server) totalsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.monitor.Totals())
}

// streamHandler pushes the busiest flows to a websocket client until it
// goes away.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	by, limit, err := listParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The read loop only notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := s.cfg.StreamInterval.D()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		msg := StreamMessage{
			Timestamp: time.Now(),
			Totals:    s.monitor.Totals(),
			Flows:     flowengine.TopFlows(s.monitor.Flows(), by, limit),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) historyTopHandler(w http.ResponseWriter, r *http.Request) {
	var req query.TopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := s.querier.Top(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query flows: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) historyTraceHandler(w http.ResponseWriter, r *http.Request) {
	var req query.TraceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := s.querier.TraceFlow(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to trace flow: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}
