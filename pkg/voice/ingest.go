package voice

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AcceptedContentType is the single audio container the ingestor
// accepts: the format browsers produce through MediaRecorder.
const AcceptedContentType = "audio/webm"

// DefaultMinBytes guards against truncated or garbage captures.
const DefaultMinBytes = 1024

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithMinBytes sets the minimum viable payload size.
func WithMinBytes(n int) IngestOption {
	return func(g *Ingestor) { g.minBytes = n }
}

// WithIngestLogger sets the structured logger.
func WithIngestLogger(l *slog.Logger) IngestOption {
	return func(g *Ingestor) { g.logger = l.With("component", "voice.ingest") }
}

// Ingestor validates inbound audio uploads and buffers them to disk.
type Ingestor struct {
	dir      string
	minBytes int
	logger   *slog.Logger
}

// NewIngestor creates an Ingestor writing buffers under dir.
func NewIngestor(dir string, opts ...IngestOption) *Ingestor {
	g := &Ingestor{
		dir:      dir,
		minBytes: DefaultMinBytes,
		logger:   slog.Default().With("component", "voice.ingest"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ingest validates data against the declared content type and writes
// it to a uniquely named scoped buffer. The caller must Remove the
// returned buffer on every exit path.
func (g *Ingestor) Ingest(data []byte, contentType string) (*Buffer, error) {
	if !acceptedType(contentType) {
		return nil, NewFault(FaultInvalidFormat, StateReceived,
			fmt.Errorf("declared type %q, want %s", contentType, AcceptedContentType))
	}
	if len(data) == 0 {
		return nil, NewFault(FaultEmptyPayload, StateReceived, nil)
	}
	if len(data) < g.minBytes {
		return nil, NewFault(FaultPayloadTooSmall, StateReceived,
			fmt.Errorf("%d bytes, minimum %d", len(data), g.minBytes))
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, NewFault(FaultPersistenceFailed, StateReceived,
			fmt.Errorf("create buffer dir: %w", err))
	}

	name := fmt.Sprintf("temp_voice_%s_%s.webm",
		time.Now().UTC().Format("20060102_150405"),
		uuid.NewString()[:8],
	)
	path := filepath.Join(g.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, NewFault(FaultPersistenceFailed, StateReceived,
			fmt.Errorf("write buffer: %w", err))
	}

	g.logger.Debug("buffered audio upload", "bytes", len(data), "path", path)

	return &Buffer{path: path}, nil
}

// acceptedType matches the declared content type against the accepted
// container, tolerating a codecs parameter ("audio/webm;codecs=opus").
func acceptedType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.ToLower(contentType))
	}
	return mediaType == AcceptedContentType
}

// Buffer is a scoped temporary audio file. It is exclusively owned by
// one pipeline invocation and must be removed on every exit path.
type Buffer struct {
	path string
	once sync.Once
}

// Path returns the buffer's filesystem location.
func (b *Buffer) Path() string {
	return b.path
}

// Remove deletes the buffer. Safe to call more than once.
func (b *Buffer) Remove() error {
	var err error
	b.once.Do(func() {
		err = os.Remove(b.path)
		if err != nil && os.IsNotExist(err) {
			err = nil
		}
	})
	return err
}

// Exists reports whether the buffer file is still on disk.
func (b *Buffer) Exists() bool {
	_, err := os.Stat(b.path)
	return err == nil
}
