// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"mcp-calorie-analyzer/internal/analyzer"
	"mcp-calorie-analyzer/internal/config"
	"mcp-calorie-analyzer/internal/storage"
)

const (
	serverName    = "calorie-analyzer"
	serverVersion = "1.0.0"
)

// ServerInfo identifies this server to MCP clients.
var ServerInfo = protocol.Implementation{
	Name:    serverName,
	Version: serverVersion,
}

type AnalyzerServer struct {
	httpServer *http.Server
	analyzer   *analyzer.Analyzer
	storage    *storage.SQLiteStorage
	config     *config.Config
	logger     *slog.Logger
	now        func() time.Time
	tools      map[string]toolDefinition
	clients    sync.Map
}

// NewAnalyzerServer wires the analyzer into the HTTP routes. History is kept
// only when cfg.DBPath is set.
func NewAnalyzerServer(cfg *config.Config, a *analyzer.Analyzer, logger *slog.Logger) (*AnalyzerServer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &AnalyzerServer{
		analyzer: a,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}

	if cfg.DBPath != "" {
		stor, err := storage.NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		s.storage = stor
	}

	s.registerTools()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP routes of the server.
func (s *AnalyzerServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

// handleHTTP serves a single tools/call request per POST.
func (s *AnalyzerServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	tool, ok := s.tools[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := tool.handler(r.Context(), &request)
	if err != nil {
		var perr *paramsError
		if errors.As(err, &perr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("tool call failed", "tool", request.Name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *AnalyzerServer) handleTools(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"server": ServerInfo,
		"tools":  s.toolList(),
	})
}

func (s *AnalyzerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": serverVersion,
		"history": s.storage != nil,
		"clients": s.connectedClients(),
	})
}

func (s *AnalyzerServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *AnalyzerServer) Start(ctx context.Context) error {
	s.logger.Info("starting calorie analyzer server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AnalyzerServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.storage != nil {
		if cerr := s.storage.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close storage: %w", cerr)
		}
	}
	return err
}

// createJSONResponse returns the summary as the first text content and the
// JSON encoding of data as the second.
func (s *AnalyzerServer) createJSONResponse(summary string, data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: summary,
			},
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
