package importer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storefront/internal/feed"
	"github.com/odyssey-erp/storefront/internal/platform/httpx"
)

// DefaultMaxUpload caps uploaded feed size.
const DefaultMaxUpload = 100 << 20

// Enqueuer schedules a background import of a spooled file.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, path string, removeAfter bool) (string, error)
}

// Handler serves the feed upload endpoint.
type Handler struct {
	logger    *slog.Logger
	importer  *Importer
	enqueuer  Enqueuer
	uploadDir string
	maxUpload int64
}

// NewHandler builds Handler. enqueuer may be nil, which disables ?async=true.
// An empty uploadDir spools into the system temp directory.
func NewHandler(logger *slog.Logger, importer *Importer, enqueuer Enqueuer, uploadDir string) *Handler {
	return &Handler{
		logger:    logger,
		importer:  importer,
		enqueuer:  enqueuer,
		uploadDir: uploadDir,
		maxUpload: DefaultMaxUpload,
	}
}

// MountRoutes registers the import routes. Callers apply authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/xml", h.uploadXML)
}

type asyncResponse struct {
	TaskID string `json:"task_id"`
}

func (h *Handler) uploadXML(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	async := r.URL.Query().Get("async") == "true"
	if async && h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background imports are not configured")
		return
	}

	path, err := h.spool(file)
	if err != nil {
		h.logger.Error("spool upload failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	if async {
		taskID, err := h.enqueuer.EnqueueImport(r.Context(), path, true)
		if err != nil {
			_ = os.Remove(path)
			h.logger.Error("enqueue import failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "could not schedule import")
			return
		}
		httpx.JSON(w, http.StatusAccepted, asyncResponse{TaskID: taskID})
		return
	}

	defer os.Remove(path)
	sum, err := h.importer.ImportFile(r.Context(), path)
	switch {
	case errors.Is(err, feed.ErrMalformedFeed):
		httpx.Problem(w, http.StatusBadRequest, "Malformed Feed", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusServiceUnavailable, "Import Interrupted", err.Error())
	case err != nil:
		h.logger.Error("import failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		httpx.JSON(w, http.StatusOK, sum)
	}
}

func (h *Handler) spool(src io.Reader) (string, error) {
	dst, err := os.CreateTemp(h.uploadDir, "feed-*.xml")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
