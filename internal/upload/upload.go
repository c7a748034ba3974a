// Package upload receives multipart audio into temporary files and makes sure
// they are removed once the request that created them is done.
package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"sync"

	"voice-gateway/internal/metrics"

	"go.uber.org/zap"
)

var (
	ErrNoFileProvided  = errors.New("no file provided")
	ErrPayloadTooLarge = errors.New("payload too large")
)

const (
	// Allowance for boundaries, part headers and small form fields on top of
	// the file itself when checking the declared Content-Length.
	multipartOverhead = 1 << 20
	maxFieldBytes     = 1 << 10
)

// Artifact is an uploaded file stored on disk. It is owned by exactly one
// handler and must be released by it.
type Artifact struct {
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
	// Fields holds the small non-file form values sent alongside the file.
	Fields map[string]string

	log  *zap.SugaredLogger
	once sync.Once
}

// Open returns a stream positioned at the start of the uploaded content.
func (a *Artifact) Open() (io.ReadCloser, error) {
	return os.Open(a.Path)
}

// Release deletes the temporary file. Safe to call more than once; only the
// first call has an effect. Deletion errors are logged and swallowed.
func (a *Artifact) Release() {
	a.once.Do(func() {
		metrics.ArtifactsInFlight.Dec()
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.log.Debugw("failed removing upload", "path", a.Path, "error", err)
		}
	})
}

type Manager struct {
	dir      string
	maxBytes int64
	log      *zap.SugaredLogger
}

func NewManager(dir string, maxBytes int64, log *zap.SugaredLogger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Manager{dir: dir, maxBytes: maxBytes, log: log}, nil
}

// Use receives the file in field, runs fn with it and releases it on every
// exit path of fn, including panics.
func (m *Manager) Use(r *http.Request, field string, fn func(*Artifact) error) error {
	a, err := m.Receive(r, field)
	if err != nil {
		return err
	}
	defer a.Release()
	return fn(a)
}

// Receive streams the multipart body of r and stores the first file part
// named field. Callers own the returned artifact and must Release it.
func (m *Manager) Receive(r *http.Request, field string) (*Artifact, error) {
	if r.ContentLength > m.maxBytes+multipartOverhead {
		return nil, ErrPayloadTooLarge
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, ErrNoFileProvided
	}

	var art *Artifact
	fields := map[string]string{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if art != nil {
				art.Release()
			}
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		switch {
		case part.FormName() == field && part.FileName() != "" && art == nil:
			art, err = m.store(part)
		case part.FileName() == "":
			err = readField(part, fields)
		}
		_ = part.Close()
		if err != nil {
			if art != nil {
				art.Release()
			}
			return nil, err
		}
	}

	if art == nil {
		return nil, ErrNoFileProvided
	}
	art.Fields = fields
	return art, nil
}

func (m *Manager) store(part *multipart.Part) (*Artifact, error) {
	f, err := os.CreateTemp(m.dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	metrics.ArtifactsInFlight.Inc()
	art := &Artifact{
		Path:         f.Name(),
		OriginalName: part.FileName(),
		MimeType:     part.Header.Get("Content-Type"),
		log:          m.log,
	}

	n, err := io.Copy(f, io.LimitReader(part, m.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		art.Release()
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrPayloadTooLarge
		}
		return nil, fmt.Errorf("write temp file: %w", err)
	case n > m.maxBytes:
		art.Release()
		return nil, ErrPayloadTooLarge
	case closeErr != nil:
		art.Release()
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	}

	art.Size = n
	metrics.UploadBytes.Observe(float64(n))
	return art, nil
}

func readField(part *multipart.Part, fields map[string]string) error {
	name := part.FormName()
	if name == "" {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return fmt.Errorf("read form field %s: %w", name, err)
	}
	if _, ok := fields[name]; !ok {
		fields[name] = string(buf)
	}
	return nil
}
