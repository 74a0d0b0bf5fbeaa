package resumes

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resumind/internal/intake"
	"resumind/internal/shared/server/middleware"
	"resumind/internal/shared/server/respond"
	"resumind/internal/shared/telemetry"
)

// multipart overhead allowed on top of the file size ceiling
const formOverhead = 1 << 20

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches resume, wipe and preview routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/resumes", h.submit)
	rg.GET("/resumes", h.list)
	rg.GET("/resumes/:id", h.detail)
	rg.GET("/resumes/:id/resume", h.blob(BlobResume))
	rg.GET("/resumes/:id/image", h.blob(BlobImage))
	rg.POST("/wipe", h.wipe)
	rg.GET("/previews/:token", h.preview)
	rg.DELETE("/previews/:token", h.releasePreview)
}

func (h *Handler) submit(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, intake.MaxSize+formOverhead)

	sub, err := readSubmission(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", intake.ErrTooLarge.Error(), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart form", nil)
		return
	}

	if wantsEventStream(c) {
		h.submitStream(c, userID, sub)
		return
	}

	out := h.Svc.Submit(c.Request.Context(), userID, sub, nil)
	annotate(c, out)
	if out.OK() {
		respond.JSON(c, http.StatusCreated, out)
		return
	}

	status, code := errorStatus(out.Err)
	details := gin.H{"status": out.Status, "statuses": out.Statuses, "stage": out.Err.Stage}
	if out.ID != "" {
		details["id"] = out.ID
	}
	if len(out.Recovery) > 0 {
		details["recovery"] = out.Recovery
	}
	respond.Error(c, status, code, out.Status, details)
}

func (h *Handler) submitStream(c *gin.Context, userID string, sub Submission) {
	w := c.Writer
	respond.StartStream(c)

	out := h.Svc.Submit(c.Request.Context(), userID, sub, func(status string) {
		if err := respond.Event(w, "status", gin.H{"status": status}); err != nil {
			telemetry.Debug("submission.stream.write_failed", map[string]any{"err": err})
		}
	})
	annotate(c, out)

	result := gin.H{"ok": out.OK(), "outcome": out}
	if out.Err != nil {
		_, code := errorStatus(out.Err)
		result["error"] = gin.H{"code": code, "message": out.Status}
	}
	if err := respond.Event(w, "result", result); err != nil {
		telemetry.Debug("submission.stream.write_failed", map[string]any{"err": err})
	}
}

func readSubmission(c *gin.Context) (Submission, error) {
	var sub Submission
	if err := c.Request.ParseMultipartForm(intake.MaxSize + formOverhead); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return sub, err
	}
	sub.CompanyName = strings.TrimSpace(c.PostForm("companyName"))
	sub.JobTitle = strings.TrimSpace(c.PostForm("jobTitle"))
	sub.JobDescription = strings.TrimSpace(c.PostForm("jobDescription"))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		// no file: the pipeline reports it as its first stage failure
		return sub, nil
	}
	file, err := fileHeader.Open()
	if err != nil {
		return sub, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return sub, err
	}
	sub.File = &intake.File{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}
	return sub, nil
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func annotate(c *gin.Context, out Outcome) {
	if out.ID != "" {
		c.Set(middleware.ResumeIDKey, out.ID)
	}
	if out.Err != nil {
		c.Set(middleware.StageKey, string(out.Err.Stage))
	}
}

func errorStatus(err *StageError) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal_error"
	}
	switch err.Kind {
	case ValidationError:
		if errors.Is(err, intake.ErrTooLarge) {
			return http.StatusRequestEntityTooLarge, "validation_error"
		}
		if errors.Is(err, intake.ErrUnsupportedType) {
			return http.StatusUnsupportedMediaType, "validation_error"
		}
		return http.StatusBadRequest, "validation_error"
	case UploadError:
		return http.StatusBadGateway, "upload_failed"
	case ConversionError:
		return http.StatusUnprocessableEntity, "conversion_failed"
	case InferenceError:
		return http.StatusBadGateway, "analysis_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

type listResponse struct {
	Loaded  bool        `json:"loaded"`
	Error   string      `json:"error,omitempty"`
	Resumes []ListEntry `json:"resumes"`
}

func toListResponse(l Listing) listResponse {
	resp := listResponse{Loaded: l.Loaded, Resumes: l.Entries}
	if resp.Resumes == nil {
		resp.Resumes = []ListEntry{}
	}
	if l.Err != nil {
		resp.Error = "failed to load resumes"
	}
	return resp
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	respond.JSON(c, http.StatusOK, toListResponse(h.Svc.List(c.Request.Context(), userID)))
}

func (h *Handler) detail(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	id := c.Param("id")
	c.Set(middleware.ResumeIDKey, id)

	d, err := h.Svc.Detail(c.Request.Context(), userID, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "resume not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load resume", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, d)
}

func (h *Handler) blob(kind BlobKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserIDFromContext(c)
		id := c.Param("id")
		c.Set(middleware.ResumeIDKey, id)

		body, contentType, err := h.Svc.OpenBlob(c.Request.Context(), userID, id, kind)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound), errors.Is(err, fs.ErrNotExist):
				respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
			default:
				respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to open file", nil)
			}
			return
		}
		defer body.Close()

		c.Header("Cache-Control", "private, max-age=300")
		c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
	}
}

type wipeRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) wipe(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req wipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	report, err := h.Svc.Purge(c.Request.Context(), userID, PurgeRequest{Confirmed: req.Confirm})
	if err != nil {
		switch {
		case errors.Is(err, ErrConfirmationRequired):
			respond.Error(c, http.StatusBadRequest, "confirmation_required", "set confirm to true to wipe all resumes", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to wipe resumes", nil)
		}
		return
	}

	listing := toListResponse(report.Listing)
	respond.JSON(c, http.StatusOK, gin.H{
		"blobsAttempted": report.BlobsAttempted,
		"blobsFailed":    report.BlobsFailed,
		"flushFailed":    report.FlushFailed,
		"loaded":         listing.Loaded,
		"error":          listing.Error,
		"resumes":        listing.Resumes,
	})
}

func (h *Handler) preview(c *gin.Context) {
	if h.Svc.Previews == nil {
		respond.Error(c, http.StatusNotFound, "not_found", "preview not found", nil)
		return
	}
	p, ok := h.Svc.Previews.Resolve(middleware.UserIDFromContext(c), c.Param("token"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "not_found", "preview not found", nil)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, p.ContentType, p.Data)
}

func (h *Handler) releasePreview(c *gin.Context) {
	if h.Svc.Previews != nil {
		h.Svc.Previews.Release(middleware.UserIDFromContext(c), c.Param("token"))
	}
	c.Status(http.StatusNoContent)
}
