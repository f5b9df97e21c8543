package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
	"github.com/0xcro3dile/docchat-go/internal/domain/usecases"
)

// handleChat streams the answer as chunked plain text. Failures before the
// first chunk are reported as a JSON error; later failures just end the body.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req entities.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	turn, err := s.chat.Turn(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	defer turn.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Session-Id", turn.SessionID)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for {
		chunk, err := turn.Recv()
		if err != nil {
			// io.EOF or a mid-stream failure: either way the body just ends.
			return
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			log.Debug().Err(err).Str("session_id", turn.SessionID).Msg("client went away mid-stream")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// wsFrame is one server-to-client websocket message.
type wsFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	Details   string `json:"details,omitempty"`
}

// wsWriter serializes writes; gorilla connections allow one writer at a time.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(f wsFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(f)
}

func (w *wsWriter) sendError(err error) error {
	body := errorBody(err)
	return w.send(wsFrame{Type: "error", Error: body.Error, Details: body.Details})
}

// handleChatWS runs one chat turn per inbound text frame. Closing the socket
// cancels the turn in flight.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	out := &wsWriter{conn: conn}

	requests := make(chan []byte, 4)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case requests <- data:
			default:
				_ = out.sendError(errs.InvalidInput("too many pending messages"))
			}
		}
	}()

	for data := range requests {
		var req entities.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if out.sendError(errs.InvalidInput("invalid JSON message")) != nil {
				return
			}
			continue
		}
		if err := s.streamTurn(ctx, out, req); err != nil {
			return
		}
	}
}

// streamTurn relays one turn over the socket. It returns an error only when
// the socket can no longer be written.
func (s *Server) streamTurn(ctx context.Context, out *wsWriter, req entities.ChatRequest) error {
	turn, err := s.chat.Turn(ctx, req)
	if err != nil {
		return out.sendError(err)
	}
	defer turn.Close()

	if err := out.send(wsFrame{Type: "session", SessionID: turn.SessionID}); err != nil {
		return err
	}
	return relay(turn, out)
}

func relay(turn *usecases.TurnStream, out *wsWriter) error {
	for {
		chunk, err := turn.Recv()
		if errors.Is(err, io.EOF) {
			return out.send(wsFrame{Type: "done"})
		}
		if err != nil {
			return out.sendError(err)
		}
		if err := out.send(wsFrame{Type: "chunk", Text: chunk}); err != nil {
			return err
		}
	}
}
