package image

import (
	"go.uber.org/zap"
)

// EventKind names a diagnostic produced while resolving
type EventKind string

const (
	EventInvalidPath  EventKind = "invalid_path"
	EventLoadFailed   EventKind = "load_failed"
	EventRetryIssued  EventKind = "retry_issued"
	EventFallback     EventKind = "fallback_served"
	EventStoreError   EventKind = "store_error"
	EventCacheCleared EventKind = "cache_cleared"
)

// Event is a developer diagnostic. It is not a stable interface.
type Event struct {
	Kind    EventKind `json:"kind"`
	Context string    `json:"context,omitempty"`
	URL     string    `json:"url,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Err     error     `json:"-"`
}

// EventSink consumes diagnostics
type EventSink interface {
	Handle(ev Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ev Event)

// Handle calls f(ev)
func (f EventSinkFunc) Handle(ev Event) { f(ev) }

// ZapSink writes diagnostics to a zap logger
type ZapSink struct {
	Logger *zap.Logger
}

// Handle logs ev at a level matching its severity
func (s ZapSink) Handle(ev Event) {
	if s.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("event", string(ev.Kind)),
		zap.String("context", ev.Context),
		zap.String("url", ev.URL),
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}

	switch ev.Kind {
	case EventLoadFailed, EventStoreError:
		s.Logger.Error("Image diagnostic", fields...)
	case EventInvalidPath:
		s.Logger.Warn("Image diagnostic", fields...)
	default:
		s.Logger.Debug("Image diagnostic", fields...)
	}
}

// Recorder receives resolution outcomes for metrics
type Recorder interface {
	RecordResolution(kind Kind, strategy Strategy, cacheHit, fallback bool)
	RecordErrorOutcome(kind Kind, outcome Outcome)
	RecordCacheClear()
}

type nopRecorder struct{}

func (nopRecorder) RecordResolution(Kind, Strategy, bool, bool) {}
func (nopRecorder) RecordErrorOutcome(Kind, Outcome)          {}
func (nopRecorder) RecordCacheClear()                          {}
