// Package audit records a structured trail of pipeline runs: one event
// per completed (or failed) run, written to a pluggable sink (sink.go).
// Unlike the teacher's gateway audit log, which batched an open-ended
// stream of access/encrypt/rotation events, this package only ever has
// one event to deliver per process lifetime, so the sink contract was
// narrowed to a single synchronous write instead of a background
// batching goroutine.
package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/dedupstream/internal/config"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeRunComplete marks a pipeline run that finished successfully.
	EventTypeRunComplete EventType = "run_complete"
	// EventTypeRunFailed marks a pipeline run that returned an error.
	EventTypeRunFailed EventType = "run_failed"
)

// AuditEvent represents a single completed or failed pipeline run.
type AuditEvent struct {
	Timestamp       time.Time              `json:"timestamp"`
	EventType       EventType              `json:"event_type"`
	Operation       string                 `json:"operation"`
	Infile          string                 `json:"infile,omitempty"`
	Outfile         string                 `json:"outfile,omitempty"`
	Codec           string                 `json:"codec,omitempty"`
	BytesIn         int64                  `json:"bytes_in"`
	BytesOutArchive int64                  `json:"bytes_out_archive"`
	ChunksTotal     int64                  `json:"chunks_total"`
	ChunksDuplicate int64                  `json:"chunks_duplicate"`
	Success         bool                   `json:"success"`
	Error           string                 `json:"error,omitempty"`
	Duration        int64                  `json:"duration_ms"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// RunStats is the subset of a pipeline run's results a Logger needs to
// record; kept separate from pipeline.Stats so this package does not
// import the pipeline package back.
type RunStats struct {
	BytesIn         int64
	BytesOutArchive int64
	ChunksTotal     int64
	ChunksDuplicate int64
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogRun logs a completed (or failed) pipeline run.
	LogRun(infile, outfile, codec string, stats RunStats, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// GetEvents returns all audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu         sync.Mutex
	events     []*AuditEvent
	maxEvents  int
	writer     EventWriter
	redactKeys []string
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction creates a new audit logger with redaction keys.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactKeys []string) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &auditLogger{
		events:     make([]*AuditEvent, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
	}
}

// NewLoggerFromConfig creates a new audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter

	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &defaultWriter{}
	default:
		return nil, fmt.Errorf("audit: unknown sink type: %s", cfg.Sink.Type)
	}

	return NewLoggerWithRedaction(cfg.MaxEvents, writer, cfg.RedactMetadataKeys), nil
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.Metadata = l.redactMetadata(event.Metadata)

	if l.writer != nil {
		if err := l.writer.WriteEvent(event); err != nil {
			fmt.Printf("audit: write event failed: %v\n", err)
		}
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata removes sensitive keys from metadata.
func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}

	needsRedaction := false
	for _, k := range l.redactKeys {
		if _, ok := metadata[k]; ok {
			needsRedaction = true
			break
		}
	}
	if !needsRedaction {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}
	for _, key := range l.redactKeys {
		if _, ok := clone[key]; ok {
			clone[key] = "[REDACTED]"
		}
	}
	return clone
}

// LogRun logs a completed or failed pipeline run.
func (l *auditLogger) LogRun(infile, outfile, codec string, stats RunStats, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	eventType := EventTypeRunComplete
	if !success {
		eventType = EventTypeRunFailed
	}

	event := &AuditEvent{
		Timestamp:       time.Now(),
		EventType:       eventType,
		Operation:       "pipeline_run",
		Infile:          infile,
		Outfile:         outfile,
		Codec:           codec,
		BytesIn:         stats.BytesIn,
		BytesOutArchive: stats.BytesOutArchive,
		ChunksTotal:     stats.ChunksTotal,
		ChunksDuplicate: stats.ChunksDuplicate,
		Success:         success,
		Duration:        duration.Milliseconds(),
		Metadata:        metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter writes events to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}
