// Package recorder is the synchronous recording sink: clients stream
// container chunks to /recSync and finalize with a duration patch and an
// optional object storage upload.
package recorder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/confmesh/sfu/internal/api"
	"github.com/confmesh/sfu/internal/config"
	"github.com/confmesh/sfu/internal/metrics"
)

// fileNamePattern requires the server-generated shape: path-safe with an
// embedded UUID so concurrent recordings never collide.
var fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]*[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}[A-Za-z0-9_.-]*$`)

// Uploader copies a finalized recording to object storage and returns its
// public URL.
type Uploader interface {
	Upload(ctx context.Context, path, name string) (string, error)
}

type Sink struct {
	log      *slog.Logger
	cfg      config.RecordingConfig
	uploader Uploader
	forward  *Forwarder

	mu    sync.Mutex
	files map[string]*recordingFile
}

type recordingFile struct {
	size      int64
	finalized bool
	url       string
}

func NewSink(log *slog.Logger, cfg config.RecordingConfig, uploader Uploader) *Sink {
	s := &Sink{
		log:      log.With("component", "recorder"),
		cfg:      cfg,
		uploader: uploader,
		files:    make(map[string]*recordingFile),
	}
	if cfg.Endpoint != "" {
		s.forward = NewForwarder(cfg.Endpoint)
	}
	return s
}

type sinkResponse struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	URL        string `json:"url,omitempty"`
	BytesTotal int64  `json:"bytes_total,omitempty"`
}

func (s *Sink) SetupRoutes(app *fiber.App) {
	app.Post("/recSync", s.handleSync)
	app.Post("/recSyncFinalize", s.handleFinalize)
	app.Post("/recSyncFixWebm", s.handleFixWebm)
}

func statusFor(kind api.ErrorKind) int {
	switch kind {
	case api.KindInvalidArgument:
		return fiber.StatusBadRequest
	case api.KindNotFound:
		return fiber.StatusNotFound
	case api.KindQuotaExceeded:
		return fiber.StatusRequestEntityTooLarge
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Sink) fail(c *fiber.Ctx, err *api.Error) error {
	return c.Status(statusFor(err.Kind)).JSON(sinkResponse{OK: false, Message: err.Error()})
}

func (s *Sink) fileName(c *fiber.Ctx) (string, *api.Error) {
	name := c.Query("fileName")
	if name == "" || !fileNamePattern.MatchString(name) || name != filepath.Base(name) {
		return "", api.NewError(api.KindInvalidArgument, "bad fileName")
	}
	return name, nil
}

// handleSync appends the request body to the named recording.
func (s *Sink) handleSync(c *fiber.Ctx) error {
	if !s.cfg.Enabled {
		return s.fail(c, api.NewError(api.KindNotFound, "recording is disabled"))
	}
	name, aerr := s.fileName(c)
	if aerr != nil {
		return s.fail(c, aerr)
	}
	body := c.Body()

	if s.forward != nil {
		if err := s.forward.Sync(name, body); err != nil {
			return s.fail(c, api.NewError(api.KindIOError, "forward failed: %v", err))
		}
		return c.JSON(sinkResponse{OK: true})
	}

	s.mu.Lock()
	file, ok := s.files[name]
	if !ok {
		file = &recordingFile{}
		s.files[name] = file
	}
	if file.finalized {
		s.mu.Unlock()
		return s.fail(c, api.NewError(api.KindInvalidArgument, "recording %s already finalized", name))
	}
	if s.cfg.MaxFileBytes > 0 && file.size+int64(len(body)) > s.cfg.MaxFileBytes {
		s.mu.Unlock()
		return s.fail(c, api.NewError(api.KindQuotaExceeded, "recording %s exceeds the size quota", name))
	}
	s.mu.Unlock()

	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return s.fail(c, api.NewError(api.KindIOError, "open: %v", err))
	}
	_, err = f.Write(body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return s.fail(c, api.NewError(api.KindIOError, "append: %v", err))
	}

	s.mu.Lock()
	file.size += int64(len(body))
	total := file.size
	s.mu.Unlock()

	metrics.RecordingChunksTotal.Inc()
	metrics.RecordingBytesTotal.Add(float64(len(body)))
	return c.JSON(sinkResponse{OK: true, BytesTotal: total})
}

// handleFinalize marks a recording complete: patch the container duration,
// optionally upload. Idempotent; repeats return the remembered result.
func (s *Sink) handleFinalize(c *fiber.Ctx) error {
	name, aerr := s.fileName(c)
	if aerr != nil {
		return s.fail(c, aerr)
	}
	if s.forward != nil {
		if err := s.forward.Finalize(name, c.Query("durationMs")); err != nil {
			return s.fail(c, api.NewError(api.KindIOError, "forward failed: %v", err))
		}
		return c.JSON(sinkResponse{OK: true})
	}

	s.mu.Lock()
	file, ok := s.files[name]
	if !ok {
		s.mu.Unlock()
		return s.fail(c, api.NewError(api.KindNotFound, "unknown recording %s", name))
	}
	if file.finalized {
		url := file.url
		s.mu.Unlock()
		return c.JSON(sinkResponse{OK: true, URL: url})
	}
	s.mu.Unlock()

	if raw := c.Query("durationMs"); raw != "" {
		durationMs, err := strconv.ParseFloat(raw, 64)
		if err != nil || durationMs < 0 {
			return s.fail(c, api.NewError(api.KindInvalidArgument, "bad durationMs"))
		}
		if err := PatchWebmDuration(s.path(name), durationMs); err != nil {
			s.log.Warn("webm duration patch failed", "file", name, "error", err)
		}
	}

	// The upload is a remote round-trip; never hold the lock across it.
	var url string
	if s.cfg.UploadToS3 && s.uploader != nil {
		var err error
		url, err = s.uploader.Upload(c.Context(), s.path(name), name)
		if err != nil {
			metrics.RecordingUploadsTotal.WithLabelValues("error").Inc()
			return s.fail(c, api.NewError(api.KindIOError, "upload: %v", err))
		}
		metrics.RecordingUploadsTotal.WithLabelValues("ok").Inc()
	}

	s.mu.Lock()
	file.finalized = true
	file.url = url
	s.mu.Unlock()
	s.log.Info("recording finalized", "file", name, "url", url)
	return c.JSON(sinkResponse{OK: true, URL: url})
}

// handleFixWebm applies the duration patch without touching the recording
// lifecycle or storage.
func (s *Sink) handleFixWebm(c *fiber.Ctx) error {
	name, aerr := s.fileName(c)
	if aerr != nil {
		return s.fail(c, aerr)
	}
	durationMs, err := strconv.ParseFloat(c.Query("durationMs"), 64)
	if err != nil || durationMs < 0 {
		return s.fail(c, api.NewError(api.KindInvalidArgument, "bad durationMs"))
	}
	if _, err := os.Stat(s.path(name)); err != nil {
		return s.fail(c, api.NewError(api.KindNotFound, "unknown recording %s", name))
	}
	if err := PatchWebmDuration(s.path(name), durationMs); err != nil {
		return s.fail(c, api.NewError(api.KindIOError, "patch: %v", err))
	}
	return c.JSON(sinkResponse{OK: true})
}

func (s *Sink) path(name string) string {
	return filepath.Join(s.cfg.Dir, name)
}
