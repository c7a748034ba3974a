package upload

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T, maxBytes int64) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), maxBytes, zap.NewNop().Sugar())
	require.NoError(t, err)
	return m
}

type filePart struct {
	field    string
	filename string
	mimeType string
	data     []byte
}

func multipartRequest(t *testing.T, files []filePart, values map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.mimeType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func dirEntries(t *testing.T, m *Manager) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(m.dir)
	require.NoError(t, err)
	return entries
}

func TestReceiveStoresFileWithMetadata(t *testing.T) {
	m := newManager(t, 1<<20)
	req := multipartRequest(t, []filePart{
		{field: "audio", filename: "voice.webm", mimeType: "audio/webm", data: []byte("RIFFdata")},
	}, map[string]string{"language": "en"})

	art, err := m.Receive(req, "audio")
	require.NoError(t, err)
	defer art.Release()

	require.Equal(t, "voice.webm", art.OriginalName)
	require.Equal(t, "audio/webm", art.MimeType)
	require.EqualValues(t, 8, art.Size)
	require.Equal(t, "en", art.Fields["language"])

	rc, err := art.Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "RIFFdata", string(got))
}

func TestReceiveSkipsOtherFileFields(t *testing.T) {
	m := newManager(t, 1<<20)
	req := multipartRequest(t, []filePart{
		{field: "image", filename: "a.png", mimeType: "image/png", data: []byte("png")},
		{field: "audio", filename: "b.m4a", mimeType: "audio/m4a", data: []byte("m4a")},
	}, nil)

	art, err := m.Receive(req, "audio")
	require.NoError(t, err)
	defer art.Release()
	require.Equal(t, "b.m4a", art.OriginalName)
	require.Len(t, dirEntries(t, m), 1)
}

func TestReceiveNoFile(t *testing.T) {
	m := newManager(t, 1<<20)

	t.Run("no body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transcribe", nil)
		_, err := m.Receive(req, "audio")
		require.ErrorIs(t, err, ErrNoFileProvided)
	})

	t.Run("json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		_, err := m.Receive(req, "audio")
		require.ErrorIs(t, err, ErrNoFileProvided)
	})

	t.Run("only fields", func(t *testing.T) {
		req := multipartRequest(t, nil, map[string]string{"language": "pt"})
		_, err := m.Receive(req, "audio")
		require.ErrorIs(t, err, ErrNoFileProvided)
	})

	t.Run("wrong field", func(t *testing.T) {
		req := multipartRequest(t, []filePart{
			{field: "file", filename: "a.mp3", mimeType: "audio/mpeg", data: []byte("x")},
		}, nil)
		_, err := m.Receive(req, "audio")
		require.ErrorIs(t, err, ErrNoFileProvided)
	})

	require.Empty(t, dirEntries(t, m))
}

func TestReceiveTooLarge(t *testing.T) {
	m := newManager(t, 16)

	t.Run("file over limit", func(t *testing.T) {
		req := multipartRequest(t, []filePart{
			{field: "audio", filename: "a.m4a", mimeType: "audio/m4a", data: bytes.Repeat([]byte("a"), 17)},
		}, nil)
		_, err := m.Receive(req, "audio")
		require.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("declared length over limit", func(t *testing.T) {
		req := multipartRequest(t, []filePart{
			{field: "audio", filename: "a.m4a", mimeType: "audio/m4a", data: []byte("a")},
		}, nil)
		req.ContentLength = 16 + multipartOverhead + 1
		_, err := m.Receive(req, "audio")
		require.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("file at limit", func(t *testing.T) {
		req := multipartRequest(t, []filePart{
			{field: "audio", filename: "a.m4a", mimeType: "audio/m4a", data: bytes.Repeat([]byte("a"), 16)},
		}, nil)
		art, err := m.Receive(req, "audio")
		require.NoError(t, err)
		art.Release()
	})

	require.Empty(t, dirEntries(t, m))
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newManager(t, 1<<20)
	req := multipartRequest(t, []filePart{
		{field: "audio", filename: "a.m4a", mimeType: "audio/m4a", data: []byte("a")},
	}, nil)
	art, err := m.Receive(req, "audio")
	require.NoError(t, err)

	art.Release()
	art.Release()
	_, err = os.Stat(art.Path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReleaseSwallowsMissingFile(t *testing.T) {
	m := newManager(t, 1<<20)
	req := multipartRequest(t, []filePart{
		{field: "audio", filename: "a.m4a", mimeType: "audio/m4a", data: []byte("a")},
	}, nil)
	art, err := m.Receive(req, "audio")
	require.NoError(t, err)

	require.NoError(t, os.Remove(art.Path))
	require.NotPanics(t, art.Release)
}

func TestUseReleasesOnEveryExitPath(t *testing.T) {
	m := newManager(t, 1<<20)
	newReq := func() *http.Request {
		return multipartRequest(t, []filePart{
			{field: "audio", filename: "a.m4a", mimeType: "audio/m4a", data: []byte("abc")},
		}, nil)
	}

	var seen string
	err := m.Use(newReq(), "audio", func(a *Artifact) error {
		seen = a.Path
		_, statErr := os.Stat(a.Path)
		require.NoError(t, statErr)
		return nil
	})
	require.NoError(t, err)
	require.NoFileExists(t, seen)

	boom := errors.New("backend down")
	err = m.Use(newReq(), "audio", func(a *Artifact) error {
		seen = a.Path
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoFileExists(t, seen)

	require.Panics(t, func() {
		_ = m.Use(newReq(), "audio", func(a *Artifact) error {
			seen = a.Path
			panic("unexpected")
		})
	})
	require.NoFileExists(t, seen)

	require.Empty(t, dirEntries(t, m))
}
