package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/gorilla/websocket"

	"github.com/European-XFEL/FunctionGenerator/internal/device"
	"github.com/European-XFEL/FunctionGenerator/internal/journal"
	"github.com/European-XFEL/FunctionGenerator/internal/logger"
	"github.com/European-XFEL/FunctionGenerator/internal/schema"
	"github.com/European-XFEL/FunctionGenerator/internal/scpi"
)

// Server exposes one device over HTTP and broadcasts live state to
// WebSocket clients.
type Server struct {
	cfg    *Config
	dev    *device.Device
	jrn    *journal.Journal // may be nil
	logger *logger.Logger   // may be nil

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	State  string                       `json:"state"`
	Status string                       `json:"status,omitempty"`
	Values map[string]device.ParamValue `json:"values,omitempty"`
	Stamp  int64                        `json:"stamp"` // Unix ms
}

// paramInfo is the schema view served over the API.
type paramInfo struct {
	Key         string   `json:"key"`
	Channel     string   `json:"channel,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Kind        string   `json:"kind"`
	Unit        string   `json:"unit,omitempty"`
	Options     []string `json:"options,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	ReadOnly    bool     `json:"readOnly,omitempty"`
	Polled      bool     `json:"polled,omitempty"`
}

// New creates a Server. Journal and logger are optional.
func New(cfg *Config, dev *device.Device, jrn *journal.Journal, lg *logger.Logger) *Server {
	return &Server{
		cfg:     cfg,
		dev:     dev,
		jrn:     jrn,
		logger:  lg,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// router builds the HTTP surface.
func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/schema", s.handleSchema)
		r.Get("/parameters", s.handleValues)
		r.Get("/parameters/{key}", s.handleGet)
		r.Post("/parameters/{key}", s.handleSet)
		r.Post("/connect", s.handleConnect)
		r.Post("/catalog/refresh", s.handleCatalogRefresh)
		r.Get("/catalog", s.handleCatalog)
		r.Get("/events", s.handleEvents)
		r.Get("/config", s.handleConfigGet)
		r.Post("/config", s.handleConfigPost)
	})
	return r
}

// Run starts the HTTP server and the broadcast loop, and blocks until the
// context ends or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	r := s.router()

	go s.broadcastLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", len(s.clients))

	// Send a full snapshot right away
	if data, err := json.Marshal(s.frame()); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", len(s.clients))
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

// broadcastLoop pushes periodic snapshots plus snapshots on every state
// change surfaced through the device event stream.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Close()
			}
			return
		case ev, ok := <-s.dev.Events():
			if !ok {
				return
			}
			if s.jrn != nil {
				s.journalEvent(ev)
			}
			if ev.Kind == device.EventState || ev.Kind == device.EventStatus {
				s.broadcast(s.frame())
			}
		case <-ticker.C:
			f := s.frame()
			s.broadcast(f)
			if s.logger != nil {
				s.logger.Record(f.Values)
			}
		}
	}
}

func (s *Server) journalEvent(ev device.Event) {
	entry := journal.Entry{
		Time:    ev.Time,
		Kind:    ev.Kind,
		Key:     ev.Key,
		Channel: ev.Channel,
		Value:   ev.Value,
		Message: ev.Message,
	}
	if err := s.jrn.Append(entry); err != nil {
		log.Printf("[journal] save failed: %v", err)
	}
}

func (s *Server) frame() Frame {
	return Frame{
		State:  s.dev.State().String(),
		Status: s.dev.Status(),
		Values: s.dev.Values(),
		Stamp:  time.Now().UnixMilli(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"model":  s.dev.Schema().Model,
		"state":  s.dev.State().String(),
		"status": s.dev.Status(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	sch := s.dev.Schema()
	var out []paramInfo
	for _, b := range sch.Bindings() {
		out = append(out, describeBinding(b))
	}
	writeJSON(w, out)
}

func describeBinding(b schema.Binding) paramInfo {
	d := b.Descriptor
	info := paramInfo{
		Key:         d.Key,
		Name:        d.Name,
		Description: d.Description,
		Kind:        d.Kind.String(),
		Unit:        d.Unit,
		Options:     d.Options,
		Min:         d.Min,
		Max:         d.Max,
		ReadOnly:    d.ReadOnly,
		Polled:      d.PollInterval > 0,
	}
	if b.Channel != nil {
		info.Channel = b.Channel.Name
	}
	return info
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.dev.Values())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	channel := r.URL.Query().Get("channel")

	if r.URL.Query().Get("refresh") == "1" {
		if _, err := s.dev.Query(key, channel); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
	v, err := s.dev.Get(key, channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"key": key, "channel": channel, "value": v.String()})
}

type setRequest struct {
	Channel string `json:"channel"`
	Value   string `json:"value"`
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var req setRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.dev.Set(key, req.Channel, scpi.Text(req.Value))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{
		"key":      key,
		"channel":  req.Channel,
		"value":    res.Value.String(),
		"mismatch": res.Mismatch,
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.dev.Connect(context.Background())
	writeJSON(w, map[string]string{"state": s.dev.State().String()})
}

type catalogRequest struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

func (s *Server) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req := catalogRequest{Key: "arbs"}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.Path == "" {
		req.Path = s.cfg.Instrument.ArbPath
	}
	arbs, err := s.dev.RefreshCatalog(req.Key, req.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, arbs)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.dev.Catalog())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.jrn == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	n := 100
	if q := r.URL.Query().Get("n"); q != "" {
		if v, err := parsePositive(q); err == nil {
			n = v
		}
	}
	entries, err := s.jrn.Recent(n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	data, err := s.cfg.ToJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.cfg.UpdateFromJSON(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.cfg.Save(); err != nil {
		log.Printf("[config] save failed: %v", err)
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}
