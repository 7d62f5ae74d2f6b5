// Package chunker splits text into bounded chunks, preferring the coarsest
// natural boundary that keeps every chunk within the configured size.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators is the boundary ladder, coarsest first: paragraph, line,
// sentence, word. The empty separator cuts between characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Config controls chunking behavior. Sizes are counted in characters (code points).
type Config struct {
	ChunkSize    int      // Maximum chunk length.
	ChunkOverlap int      // Upper bound on trailing content carried into the next chunk.
	Separators   []string // Boundary preference, coarsest first. Nil means DefaultSeparators.
}

// DefaultParentConfig returns the coarse pass used for parent chunks.
func DefaultParentConfig() Config {
	return Config{ChunkSize: 2000, ChunkOverlap: 200}
}

// DefaultChildConfig returns the fine pass used for child chunks.
func DefaultChildConfig() Config {
	return Config{ChunkSize: 300, ChunkOverlap: 50}
}

// Validate checks the size/overlap relationship.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Splitter is a recursive character splitter. It is immutable and safe for concurrent use.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

// New creates a Splitter from a validated Config.
func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return &Splitter{
		size:       cfg.ChunkSize,
		overlap:    cfg.ChunkOverlap,
		separators: append([]string(nil), seps...),
	}, nil
}

// MustNew is New for configurations known to be valid.
func MustNew(cfg Config) *Splitter {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.size }

// Split breaks text into ordered chunks of at most ChunkSize characters.
// Chunks are trimmed of surrounding whitespace; empty input yields no chunks.
func (s *Splitter) Split(text string) []string {
	out := s.split(text, s.separators)
	if out == nil {
		return []string{}
	}
	return out
}

func (s *Splitter) split(text string, separators []string) []string {
	sep, finer := pickSeparator(text, separators)

	var out, pending []string
	for _, piece := range splitKeepSeparator(text, sep) {
		if length(piece) <= s.size {
			pending = append(pending, piece)
			continue
		}
		// Too large: flush what fits so far, then re-split this piece on a finer boundary.
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.split(piece, finer)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge greedily packs pieces into chunks. When a chunk is emitted, its trailing
// pieces (at most overlap characters) seed the next one.
func (s *Splitter) merge(pieces []string) []string {
	var out, window []string
	total := 0

	emit := func() {
		if c := strings.TrimSpace(strings.Join(window, "")); c != "" {
			out = append(out, c)
		}
	}

	for _, piece := range pieces {
		n := length(piece)
		if total+n > s.size && len(window) > 0 {
			emit()
			for total > s.overlap || (total > 0 && total+n > s.size) {
				total -= length(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += n
	}
	emit()
	return out
}

// pickSeparator returns the first separator present in text and the finer ones after it.
// With no match the text is cut between characters.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitKeepSeparator splits text on sep, attaching each separator to the start
// of the piece that follows it, so joining the pieces restores the text.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for i := 0; i < len(text); {
			_, w := utf8.DecodeRuneInString(text[i:])
			out = append(out, text[i:i+w])
			i += w
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
