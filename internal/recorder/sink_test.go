package recorder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/confmesh/sfu/internal/config"
)

const recName = "rec-123e4567-e89b-12d3-a456-426614174000.webm"

type stubUploader struct {
	url  string
	err  error
	seen []string
}

func (u *stubUploader) Upload(ctx context.Context, path, name string) (string, error) {
	u.seen = append(u.seen, name)
	return u.url, u.err
}

func newTestSink(t *testing.T, cfg config.RecordingConfig, uploader Uploader) (*fiber.App, *Sink) {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	sink := NewSink(slog.Default(), cfg, uploader)
	app := fiber.New()
	sink.SetupRoutes(app)
	return app, sink
}

func post(t *testing.T, app *fiber.App, target string, body []byte) (int, sinkResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s failed: %v", target, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var decoded sinkResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response %q: %v", raw, err)
	}
	return resp.StatusCode, decoded
}

func TestSyncDisabled(t *testing.T) {
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: false}, nil)
	status, resp := post(t, app, "/recSync?fileName="+recName, []byte("chunk"))
	if status != http.StatusNotFound || resp.OK {
		t.Errorf("status = %d ok = %v, want 404 and not ok", status, resp.OK)
	}
}

func TestSyncRejectsBadFileNames(t *testing.T) {
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true}, nil)
	bad := []string{
		"",
		"plain.webm",
		"../" + recName,
		"a/b-123e4567-e89b-12d3-a456-426614174000",
	}
	for _, name := range bad {
		status, _ := post(t, app, "/recSync?fileName="+name, []byte("chunk"))
		if status != http.StatusBadRequest {
			t.Errorf("fileName %q: status = %d, want 400", name, status)
		}
	}
}

func TestSyncAppendsChunks(t *testing.T) {
	dir := t.TempDir()
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true, Dir: dir}, nil)

	status, resp := post(t, app, "/recSync?fileName="+recName, []byte("hello "))
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("first chunk: status = %d, resp = %+v", status, resp)
	}
	if resp.BytesTotal != 6 {
		t.Errorf("bytes_total = %d, want 6", resp.BytesTotal)
	}

	status, resp = post(t, app, "/recSync?fileName="+recName, []byte("world"))
	if status != http.StatusOK || resp.BytesTotal != 11 {
		t.Fatalf("second chunk: status = %d, resp = %+v", status, resp)
	}

	data, err := os.ReadFile(filepath.Join(dir, recName))
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("file content = %q, want %q", data, "hello world")
	}
}

func TestSyncQuota(t *testing.T) {
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true, MaxFileBytes: 10}, nil)

	if status, _ := post(t, app, "/recSync?fileName="+recName, []byte("123456")); status != http.StatusOK {
		t.Fatalf("first chunk status = %d, want 200", status)
	}
	status, _ := post(t, app, "/recSync?fileName="+recName, []byte("7890123"))
	if status != http.StatusRequestEntityTooLarge {
		t.Errorf("over-quota status = %d, want 413", status)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	dir := t.TempDir()
	uploader := &stubUploader{url: "https://bucket.s3.eu-west-1.amazonaws.com/" + recName}
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true, Dir: dir, UploadToS3: true}, uploader)

	post(t, app, "/recSync?fileName="+recName, streamedWebm())

	status, resp := post(t, app, "/recSyncFinalize?fileName="+recName+"&durationMs=5000", nil)
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("finalize: status = %d, resp = %+v", status, resp)
	}
	if resp.URL != uploader.url {
		t.Errorf("url = %s, want %s", resp.URL, uploader.url)
	}
	if got := readDuration(t, filepath.Join(dir, recName)); got != 5000 {
		t.Errorf("patched duration = %v, want 5000", got)
	}

	// Repeat finalize returns the remembered result without a second upload.
	status, resp = post(t, app, "/recSyncFinalize?fileName="+recName+"&durationMs=5000", nil)
	if status != http.StatusOK || resp.URL != uploader.url {
		t.Fatalf("repeat finalize: status = %d, resp = %+v", status, resp)
	}
	if len(uploader.seen) != 1 {
		t.Errorf("uploads = %d, want 1", len(uploader.seen))
	}

	// Appending to a finalized recording is refused.
	status, _ = post(t, app, "/recSync?fileName="+recName, []byte("late"))
	if status != http.StatusBadRequest {
		t.Errorf("post-finalize append status = %d, want 400", status)
	}
}

func TestFinalizeUnknownRecording(t *testing.T) {
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true}, nil)
	status, _ := post(t, app, "/recSyncFinalize?fileName="+recName, nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestFinalizeUploadFailureIsRetryable(t *testing.T) {
	uploader := &stubUploader{err: errors.New("s3 unreachable")}
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true, UploadToS3: true}, uploader)

	post(t, app, "/recSync?fileName="+recName, streamedWebm())

	status, _ := post(t, app, "/recSyncFinalize?fileName="+recName, nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("failed upload status = %d, want 500", status)
	}

	uploader.err = nil
	uploader.url = "https://example.com/" + recName
	status, resp := post(t, app, "/recSyncFinalize?fileName="+recName, nil)
	if status != http.StatusOK || resp.URL != uploader.url {
		t.Errorf("retry finalize: status = %d, resp = %+v", status, resp)
	}
}

func TestFixWebm(t *testing.T) {
	dir := t.TempDir()
	app, _ := newTestSink(t, config.RecordingConfig{Enabled: true, Dir: dir}, nil)
	if err := os.WriteFile(filepath.Join(dir, recName), streamedWebm(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	status, resp := post(t, app, "/recSyncFixWebm?fileName="+recName+"&durationMs=2500", nil)
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("fixWebm: status = %d, resp = %+v", status, resp)
	}
	if got := readDuration(t, filepath.Join(dir, recName)); got != 2500 {
		t.Errorf("patched duration = %v, want 2500", got)
	}

	status, _ = post(t, app, "/recSyncFixWebm?fileName=missing-123e4567-e89b-12d3-a456-426614174000&durationMs=1", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing file status = %d, want 404", status)
	}

	status, _ = post(t, app, "/recSyncFixWebm?fileName="+recName+"&durationMs=-5", nil)
	if status != http.StatusBadRequest {
		t.Errorf("negative duration status = %d, want 400", status)
	}
}
