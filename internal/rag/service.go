package rag

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
)

// EventKind identifies a stream event.
type EventKind string

const (
	EventDelta   EventKind = "delta"
	EventSources EventKind = "sources"
	EventError   EventKind = "error"
	EventDone    EventKind = "done"
)

// Event is one element of an answer stream. Text is set for deltas and
// errors, Citations for sources, Err for errors.
type Event struct {
	Kind      EventKind
	Text      string
	Citations []domain.Citation
	Err       error
}

// DefaultTopK is the number of parents retrieved per question.
const DefaultTopK = 5

// replayMinRunes is the shortest fragment the replay guard considers.
// Single characters repeat legitimately ("..", "11").
const replayMinRunes = 2

// Service answers questions from retrieved context.
type Service struct {
	retriever *Retriever
	generator llm.Generator
	topK      int
	log       *slog.Logger
}

func NewService(r *Retriever, g llm.Generator, topK int, log *slog.Logger) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{retriever: r, generator: g, topK: topK, log: log.With("component", "rag")}
}

// AnswerStream returns a lazy event sequence for query. Each iteration starts
// a fresh retrieval and generation. Unless the consumer stops early, the last
// event is always EventDone.
func (s *Service) AnswerStream(ctx context.Context, conversation []llm.Message, query string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		if !s.stream(ctx, conversation, query, yield) {
			return
		}
		yield(Event{Kind: EventDone})
	}
}

// stream emits everything except the terminal event. It returns false when
// the consumer stopped.
func (s *Service) stream(ctx context.Context, conversation []llm.Message, query string, yield func(Event) bool) bool {
	if s.retriever == nil || s.generator == nil {
		return yield(errorEvent(domain.ErrNotInitialized))
	}

	retrieval, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		s.log.Error("retrieval failed", "error", err)
		return yield(errorEvent(err))
	}
	if retrieval.Empty() {
		return yield(Event{Kind: EventDelta, Text: FallbackAnswer})
	}

	msgs := BuildMessages(conversation, query, retrieval.Context())
	var buf strings.Builder
	for frag, err := range s.generator.Stream(ctx, msgs) {
		if err != nil {
			s.log.Error("generation failed", "error", err, "emitted_bytes", buf.Len())
			return yield(errorEvent(domain.Wrap(domain.ErrCapability, "generate", err)))
		}
		if frag == "" || isReplay(buf.String(), frag) {
			continue
		}
		buf.WriteString(frag)
		if !yield(Event{Kind: EventDelta, Text: frag}) {
			return false
		}
	}
	return yield(Event{Kind: EventSources, Citations: retrieval.Citations()})
}

// isReplay reports whether frag merely repeats the tail of what was already
// emitted. This is a heuristic against upstreams that resend a fragment.
func isReplay(buffered, frag string) bool {
	return utf8.RuneCountInString(frag) >= replayMinRunes && strings.HasSuffix(buffered, frag)
}

func errorEvent(err error) Event {
	return Event{Kind: EventError, Text: err.Error(), Err: err}
}

// Answer drains AnswerStream into the full text and its citations.
func (s *Service) Answer(ctx context.Context, conversation []llm.Message, query string) (string, []domain.Citation, error) {
	var b strings.Builder
	citations := []domain.Citation{}
	for ev := range s.AnswerStream(ctx, conversation, query) {
		switch ev.Kind {
		case EventDelta:
			b.WriteString(ev.Text)
		case EventSources:
			citations = ev.Citations
		case EventError:
			if ev.Err != nil {
				return "", nil, ev.Err
			}
			return "", nil, errors.New(ev.Text)
		}
	}
	return b.String(), citations, nil
}
