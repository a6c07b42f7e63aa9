package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/videogen/internal/api/dto"
	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/gin-gonic/gin"
)

// GenerateVideo handles POST /api/v1/videos
// Blocks until the vendor operation finishes and streams the media back
func (h *VideoHandler) GenerateVideo(c *gin.Context) {
	var req dto.GenerateVideoRequest
	if err := h.bindIntake(c, &req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		writeMessage(c, http.StatusBadRequest, poller.KindValidation, "Invalid request body")
		return
	}

	h.logger.Info("GenerateVideo called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("prompt_length", len(req.Prompt)),
		slog.String("aspect_ratio", req.AspectRatio),
	)

	// the request context is canceled when the client disconnects, which stops polling
	job, artifact, err := h.generator.Run(c.Request.Context(), poller.Request{
		Prompt:         req.Prompt,
		AspectRatio:    req.AspectRatio,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Video generated",
		slog.String("operation_id", job.ID),
		slog.Int("attempts", job.Attempts),
		slog.Int("bytes", len(artifact.Data)),
	)

	c.Header("X-Operation-Id", job.ID)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// bindIntake binds JSON or form input and releases any temporary files
// created by multipart parsing on every exit path.
func (h *VideoHandler) bindIntake(c *gin.Context, obj any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	defer removeMultipartFiles(c)

	if isForm(c) {
		if err := c.Request.ParseMultipartForm(h.maxUploadBytes); err != nil && err != http.ErrNotMultipart {
			return err
		}
		return c.ShouldBind(obj)
	}

	return c.ShouldBindJSON(obj)
}

func isForm(c *gin.Context) bool {
	contentType := c.ContentType()
	return strings.HasPrefix(contentType, "multipart/") || contentType == "application/x-www-form-urlencoded"
}

func removeMultipartFiles(c *gin.Context) {
	if c.Request.MultipartForm == nil {
		return
	}
	_ = c.Request.MultipartForm.RemoveAll()
}
