// Package logging builds the per-run *slog.Logger (§10.1): JSON to stderr,
// the way the teacher's runtime/app.go builds
// slog.New(slog.NewJSONHandler(...)), fanned out to an in-memory Sink so the
// same records are captured into CaseResult.Logs (§4.15).
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/sisyphus-test/sisyphus/internal/model"
)

// Sink is an slog.Handler that captures every record as a model.LogEntry
// instead of writing it anywhere, so a run's logs can ride along in its
// CaseResult.
type Sink struct {
	mu      sync.Mutex
	entries []model.LogEntry
}

func (s *Sink) Enabled(context.Context, slog.Level) bool { return true }

func (s *Sink) Handle(_ context.Context, r slog.Record) error {
	entry := model.LogEntry{Timestamp: r.Time, Level: r.Level.String(), Message: r.Message}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "stepIndex" && a.Value.Kind() == slog.KindInt64 {
			i := int(a.Value.Int64())
			entry.StepIndex = &i
		}
		return true
	})
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *Sink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *Sink) WithGroup(string) slog.Handler      { return s }

// Entries returns a snapshot of everything captured so far.
func (s *Sink) Entries() []model.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// multiHandler fans one record out to every handler it wraps, generalizing
// the teacher's single-handler *slog.Logger to also feed a Sink.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// New builds one *slog.Logger for a run: JSON to stderr (stdout stays
// reserved for -O json) plus sink, matching runtime/app.go's
// slog.New(slog.NewJSONHandler(...)) construction.
func New(sink *Sink) *slog.Logger {
	return slog.New(&multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(os.Stderr, nil),
		sink,
	}})
}

// WithStep returns args tagging a log line with the step it belongs to, the
// way the teacher's e.l.InfoContext(execution, ..., "error", fbFE) attaches
// ad hoc key/value pairs.
func WithStep(index int) []any {
	return []any{"stepIndex", index}
}
