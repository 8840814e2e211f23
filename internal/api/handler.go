package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"
	"github.com/hobojuki/feishu-hobojuki/internal/biz/usecase"
)

// Server provides the admin HTTP API used by hobojuki-mcp and operators
type Server struct {
	queue      *usecase.ScheduleQueue
	gatherer   *usecase.GathererUsecase
	classifier *usecase.ClassifierUsecase
	ledger     repo.LedgerRepo // optional

	summary usecase.SummarizeOptions
	search  usecase.SearchRequest
	now     func() time.Time

	server *http.Server
	port   int
	logger *zap.Logger
}

// Options holds the defaults applied to API requests
type Options struct {
	Summary usecase.SummarizeOptions
	Search  usecase.SearchRequest
}

// NewServer creates a new API server
func NewServer(
	queue *usecase.ScheduleQueue,
	gatherer *usecase.GathererUsecase,
	classifier *usecase.ClassifierUsecase,
	ledger repo.LedgerRepo,
	opts Options,
	port int,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		queue:      queue,
		gatherer:   gatherer,
		classifier: classifier,
		ledger:     ledger,
		summary:    opts.Summary,
		search:     opts.Search,
		now:        time.Now,
		port:       port,
		logger:     logger.Named("api"),
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/schedules", s.handleSchedules)
	mux.HandleFunc("/api/schedules/", s.handleScheduleItem)
	mux.HandleFunc("/api/summarize", s.handleSummarize)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/classify", s.handleClassify)
	mux.HandleFunc("/api/deliveries", s.handleDeliveries)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", zap.Int("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// ============ Schedule Handlers ============

// ScheduleRequest queues a deferred reply
type ScheduleRequest struct {
	Time      string `json:"time"` // HH:MM
	Message   string `json:"message"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, map[string]interface{}{"entries": s.queue.Pending()})

	case http.MethodPost:
		var req ScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.ChatID == "" {
			http.Error(w, "chat_id is required", http.StatusBadRequest)
			return
		}

		target := domain.ReplyTarget{ChatID: req.ChatID, MessageID: req.MessageID}
		entry, err := s.queue.Schedule(req.Time, req.Message, target, s.now())
		if err != nil {
			var fe *domain.SchedulingFormatError
			if errors.As(err, &fe) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.writeError(w, err)
			return
		}
		s.logger.Info("message scheduled", zap.String("id", entry.ID), zap.Time("fire_at", entry.FireAt))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(entry)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleScheduleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/schedules/")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if !s.queue.Cancel(id) {
		http.Error(w, "schedule not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

// ============ Gatherer Handlers ============

// SummarizeRequest asks for a page summary
type SummarizeRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars,omitempty"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	opts := s.summary
	if req.MaxChars > 0 {
		opts.MaxChars = req.MaxChars
	}
	result, err := s.gatherer.Summarize(r.Context(), req.URL, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, result)
}

// SearchRequest is a web search over the API
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	search := s.search
	search.Query = req.Query
	if req.MaxResults > 0 {
		search.MaxResults = req.MaxResults
	}
	s.writeJSON(w, map[string]interface{}{"results": s.gatherer.Search(r.Context(), search)})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, s.classifier.Classify(r.Context(), req.Question))
}

// ============ Ledger Handlers ============

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.ledger == nil {
		http.Error(w, "ledger not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	deliveries, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"deliveries": deliveries})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
