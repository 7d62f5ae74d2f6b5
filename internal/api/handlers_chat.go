package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/rag"
)

const maxQueryRunes = 1000

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
	Query    string        `json:"query"`
}

type chatResponse struct {
	Response string            `json:"response"`
	Sources  []domain.Citation `json:"sources"`
}

type streamPayload struct {
	Type    string            `json:"type"`
	Content string            `json:"content,omitempty"`
	Sources []domain.Citation `json:"sources,omitempty"`
	Message string            `json:"message,omitempty"`
}

func (req *chatRequest) validate() error {
	if len(req.Messages) == 0 {
		return domain.Validationf("messages must contain at least one message")
	}
	for i, m := range req.Messages {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			return domain.Validationf("messages[%d]: role must be %q or %q", i, llm.RoleUser, llm.RoleAssistant)
		}
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.Validationf("query is required")
	}
	if utf8.RuneCountInString(req.Query) > maxQueryRunes {
		return domain.Validationf("query exceeds %d characters", maxQueryRunes)
	}
	return nil
}

func decodeChat(w http.ResponseWriter, r *http.Request) (*chatRequest, error) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		return nil, domain.Validationf("invalid request body: %v", err)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, sources, err := s.backend.Answer(r.Context(), req.Messages, req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []domain.Citation{}
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: answer, Sources: sources})
}

// handleChatStream relays the answer as server-sent events: numbered chunk
// messages, then an optional sources event, then done. Failures after the
// stream starts arrive as an error event followed by done.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChat(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse := newSSEWriter(w)
	count := 0
	for ev := range s.backend.AnswerStream(r.Context(), req.Messages, req.Query) {
		var werr error
		switch ev.Kind {
		case rag.EventDelta:
			count++
			werr = sse.send(strconv.Itoa(count), "message", streamPayload{Type: "chunk", Content: ev.Text})
		case rag.EventSources:
			if len(ev.Citations) == 0 {
				continue
			}
			werr = sse.send("sources", "sources", streamPayload{Type: "sources", Sources: ev.Citations})
		case rag.EventError:
			s.log.Warn("answer stream failed", "error", ev.Err)
			werr = sse.send("", "error", streamPayload{Type: "error", Message: ev.Text})
		case rag.EventDone:
			werr = sse.send("", "done", streamPayload{Type: "done"})
		}
		if werr != nil {
			// Client went away; leaving the loop stops generation.
			s.log.Debug("stream write failed", "error", werr)
			return
		}
	}
}
