// internal/server/websocket.go
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsReadLimit leaves room for payloads above the image limit so they are
// rejected by validation with a proper error instead of a closed socket.
const wsReadLimit = 32 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (s *AnalyzerServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	clientID := uuid.New().String()
	s.clients.Store(clientID, conn)
	defer s.clients.Delete(clientID)
	logger := s.logger.With("client_id", clientID)
	logger.Debug("websocket client connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendError(conn, "Invalid message format")
			continue
		}

		// Messages are handled in order; one goroutine owns all writes.
		switch msg.Type {
		case "analyze":
			s.handleWSAnalyze(r, conn, msg.Data)
		case "get_history":
			s.handleWSHistory(r, conn, msg.Data)
		default:
			s.sendError(conn, "Unknown message type")
		}
	}
}

func (s *AnalyzerServer) handleWSAnalyze(r *http.Request, conn *websocket.Conn, data json.RawMessage) {
	var params AnalyzeFoodImageParams
	if len(data) == 0 || json.Unmarshal(data, &params) != nil {
		s.sendError(conn, "Invalid analyze request")
		return
	}

	imageData, mediaType := stripDataURL(params.ImageData)
	params.ImageData = imageData
	if params.ImageType == "" {
		params.ImageType = mediaType
	}

	result := s.analyze(r.Context(), params.submission())
	s.sendMessage(conn, "analysis_result", result)
}

func (s *AnalyzerServer) handleWSHistory(r *http.Request, conn *websocket.Conn, data json.RawMessage) {
	var params GetAnalysesParams
	if len(data) > 0 && json.Unmarshal(data, &params) != nil {
		s.sendError(conn, "Invalid history request")
		return
	}

	records, err := s.history(r.Context(), params)
	if err != nil {
		s.logger.Warn("failed to retrieve history", "error", err)
		s.sendError(conn, "Failed to retrieve history")
		return
	}
	s.sendMessage(conn, "history", records)
}

func (s *AnalyzerServer) sendMessage(conn *websocket.Conn, messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("failed to send websocket message", "type", messageType, "error", err)
	}
}

func (s *AnalyzerServer) sendError(conn *websocket.Conn, message string) {
	msg := map[string]any{
		"type":    "error",
		"message": message,
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("failed to send websocket error", "error", err)
	}
}

// stripDataURL removes a "data:<media type>;base64," prefix and returns the
// bare payload with the media type it declared. Other input is returned as is.
func stripDataURL(s string) (payload, mediaType string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	header, rest, ok := strings.Cut(s, ",")
	if !ok {
		return s, ""
	}
	header = strings.TrimPrefix(header, "data:")
	mediaType, _, _ = strings.Cut(header, ";")
	return rest, mediaType
}

// connectedClients reports the number of open websocket connections.
func (s *AnalyzerServer) connectedClients() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
