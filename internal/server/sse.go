package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mailpilot/mailpilot/internal/logging"
	"github.com/mailpilot/mailpilot/internal/tools"
)

// StreamServer is the SSE transport: a GET establishes a session's event
// stream, POSTs submit invocations, and responses flow back over the stream.
// Two endpoint prefixes are served for client compatibility (/sse and
// /mcp/sse); both run through the same session creation path, so a client's
// choice of prefix changes nothing about session behavior.
type StreamServer struct {
	manager    *SessionManager
	dispatcher *tools.Dispatcher
	logger     *slog.Logger
}

// NewStreamServer creates the SSE transport over the shared dispatcher.
func NewStreamServer(manager *SessionManager, dispatcher *tools.Dispatcher, logger *slog.Logger) *StreamServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamServer{
		manager:    manager,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handler returns the transport's HTTP handler.
func (s *StreamServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", s.handleStream("/messages"))
	mux.HandleFunc("/messages", s.handleMessage)
	mux.HandleFunc("/mcp/sse", s.handleStream("/mcp/messages"))
	mux.HandleFunc("/mcp/messages", s.handleMessage)
	return mux
}

// handleStream opens a session and serves its event stream until the client
// disconnects or the session is closed. The first event names the message
// endpoint the client must POST invocations to.
func (s *StreamServer) handleStream(messagePath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		session := s.manager.NewSession(r.Context())
		defer s.manager.Close(session.ID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", messagePath, session.ID)
		flusher.Flush()
		session.Open()

		for {
			resp, ok := session.Next()
			if !ok {
				return
			}
			data, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("failed to encode response",
					logging.Session(session.ID),
					logging.Err(err))
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleMessage accepts one invocation for an open session. Execution is
// asynchronous: the POST returns 202 immediately and the response arrives on
// the session's event stream. The dispatch runs on the session context, so a
// disconnect aborts in-flight work.
func (s *StreamServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	session, ok := s.manager.Get(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	session.Touch()

	var inv tools.Invocation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		http.Error(w, "invalid invocation payload", http.StatusBadRequest)
		return
	}
	inv.SessionID = session.ID

	go func() {
		resp := s.dispatcher.Dispatch(session.Context(), &inv)
		if err := session.Enqueue(resp); err != nil {
			// Session closed while executing; the response has nowhere to go.
			s.logger.Debug("dropping response for closed session",
				logging.Session(session.ID),
				logging.Request(inv.RequestID))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"requestId": inv.RequestID,
		"state":     tools.StateReceived,
	})
}
