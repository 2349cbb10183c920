// Package telegramtest provides an in-process Bot API for tests.
package telegramtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Token is accepted by the fake server's getMe.
const Token = "123:abc"

// Message is one sendMessage call as the server saw it.
type Message struct {
	Path      string
	ChatID    string
	Text      string
	ParseMode string
}

// Server answers getMe, sendMessage and getUpdates the way the Bot API does.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	sent       []Message
	calls      map[string]int
	updates    []json.RawMessage
	updateIDs  []int
	lastOffset int
	failText   string
}

// NewServer starts a fake Bot API closed at the end of the test.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// FailText makes sendMessage reject messages with exactly this text.
func (s *Server) FailText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failText = text
}

// QueueText adds an incoming private message to the update feed. Text starting
// with "/" is tagged as a bot command, as the real API does.
func (s *Server) QueueText(updateID int, chatID int64, text string) {
	msg := map[string]any{
		"message_id": updateID,
		"date":       time.Now().Unix(),
		"chat":       map[string]any{"id": chatID, "type": "private"},
		"from":       map[string]any{"id": chatID, "is_bot": false, "first_name": "user"},
		"text":       text,
	}
	if strings.HasPrefix(text, "/") {
		length := len([]rune(text))
		if i := strings.IndexByte(text, ' '); i >= 0 {
			length = len([]rune(text[:i]))
		}
		msg["entities"] = []map[string]any{{"type": "bot_command", "offset": 0, "length": length}}
	}
	raw, _ := json.Marshal(map[string]any{"update_id": updateID, "message": msg})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, raw)
	s.updateIDs = append(s.updateIDs, updateID)
}

// Sent returns a copy of the received messages in arrival order.
func (s *Server) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}

// Calls returns how many times method was called.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LastOffset returns the offset of the most recent getUpdates call.
func (s *Server) LastOffset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOffset
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseForm()

	s.mu.Lock()
	s.calls[method]++
	s.mu.Unlock()

	if !strings.HasPrefix(r.URL.Path, "/bot"+Token+"/") {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	switch method {
	case "getMe":
		writeResult(w, map[string]any{"id": 1, "is_bot": true, "first_name": "bot", "username": "pricebot"})
	case "sendMessage":
		msg := Message{
			Path:      r.URL.Path,
			ChatID:    r.PostFormValue("chat_id"),
			Text:      r.PostFormValue("text"),
			ParseMode: r.PostFormValue("parse_mode"),
		}
		s.mu.Lock()
		s.sent = append(s.sent, msg)
		fail := s.failText != "" && msg.Text == s.failText
		s.mu.Unlock()
		if fail {
			writeError(w, http.StatusBadRequest, "Bad Request: can't parse entities")
			return
		}
		writeResult(w, map[string]any{
			"message_id": 1,
			"date":       time.Now().Unix(),
			"chat":       map[string]any{"id": 1, "type": "private"},
			"text":       msg.Text,
		})
	case "getUpdates":
		offset, _ := strconv.Atoi(r.PostFormValue("offset"))
		s.mu.Lock()
		s.lastOffset = offset
		pending := []json.RawMessage{}
		for i, id := range s.updateIDs {
			if id >= offset {
				pending = append(pending, s.updates[i])
			}
		}
		s.mu.Unlock()
		if len(pending) == 0 {
			// Stand in for the long-poll wait so callers do not spin.
			time.Sleep(10 * time.Millisecond)
		}
		writeResult(w, pending)
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func writeError(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": status, "description": description})
}
