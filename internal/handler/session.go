package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/easeaico/storybook/internal/config"
	"github.com/easeaico/storybook/internal/imageutil"
	"github.com/easeaico/storybook/internal/session"
	"github.com/easeaico/storybook/internal/storage"
	"github.com/easeaico/storybook/internal/types"
)

const sourceCamera = "camera"

// StorybookArchive reads archived storybooks.
type StorybookArchive interface {
	ListRecent(ctx context.Context, limit int) ([]types.Storybook, error)
	GetBySession(ctx context.Context, sessionID string) (*types.Storybook, error)
}

// SessionHandler exposes the storybook session over HTTP.
type SessionHandler struct {
	service        *session.Service
	archive        StorybookArchive
	maxUploadBytes int64
}

// NewSessionHandler returns a SessionHandler. archive may be nil.
func NewSessionHandler(service *session.Service, archive StorybookArchive, maxUploadBytes int64) *SessionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	return &SessionHandler{
		service:        service,
		archive:        archive,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the session routes on group.
func (h *SessionHandler) Register(group *gin.RouterGroup) {
	group.GET("/options", h.options)
	group.GET("/storybooks", h.listStorybooks)

	sessions := group.Group("/sessions")
	sessions.POST("", h.create)
	sessions.GET("/:id", h.get)
	sessions.DELETE("/:id", h.close)
	sessions.PUT("/:id/config", h.updateConfig)
	sessions.POST("/:id/images", h.addImages)
	sessions.DELETE("/:id/images", h.clearImages)
	sessions.POST("/:id/submit", h.submit)
	sessions.POST("/:id/prev", h.prev)
	sessions.POST("/:id/next", h.next)
	sessions.POST("/:id/finalize", h.finalize)
	sessions.POST("/:id/reset", h.reset)
	sessions.GET("/:id/images/:key", h.image)
	sessions.GET("/:id/audio", h.audio)
	sessions.GET("/:id/storybook", h.storybook)
}

func (h *SessionHandler) options(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"genres":   types.Genres,
		"purposes": types.Purposes,
		"defaults": types.DefaultStoryConfig(),
		"min_age":  types.MinAge,
		"max_age":  types.MaxAge,
	})
}

func (h *SessionHandler) create(c *gin.Context) {
	state := h.service.Create()
	c.JSON(http.StatusCreated, h.view(c, state))
}

func (h *SessionHandler) get(c *gin.Context) {
	state, err := h.service.Get(c.Param("id"))
	h.respond(c, state, err)
}

func (h *SessionHandler) close(c *gin.Context) {
	if err := h.service.Close(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) updateConfig(c *gin.Context) {
	var cfg types.StoryConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config payload"})
		return
	}
	state, err := h.service.UpdateConfig(c.Param("id"), cfg)
	h.respond(c, state, err)
}

func (h *SessionHandler) addImages(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart upload"})
		return
	}

	files := form.File["images"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": session.NoticeNoImages})
		return
	}

	images := make([]types.Image, 0, len(files))
	for _, file := range files {
		img, err := readImage(file)
		if err != nil {
			slog.Warn("rejected upload", "filename", file.Filename, "error", err.Error())
			h.fail(c, err)
			return
		}
		images = append(images, img)
	}

	camera := c.PostForm("source") == sourceCamera
	state, added, err := h.service.AddImages(c.Param("id"), images, camera)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "session": h.view(c, state)})
}

func (h *SessionHandler) clearImages(c *gin.Context) {
	state, err := h.service.ClearImages(c.Param("id"))
	h.respond(c, state, err)
}

func (h *SessionHandler) submit(c *gin.Context) {
	state, err := h.service.Submit(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNoImages) {
		c.JSON(http.StatusBadRequest, gin.H{"error": state.Notice, "session": h.view(c, state)})
		return
	}
	h.respond(c, state, err)
}

func (h *SessionHandler) prev(c *gin.Context) {
	state, err := h.service.Prev(c.Param("id"))
	h.respond(c, state, err)
}

func (h *SessionHandler) next(c *gin.Context) {
	state, err := h.service.Next(c.Param("id"))
	if err == nil && state.Phase == session.PhaseFinalizing {
		state, err = h.service.Finalize(c.Request.Context(), c.Param("id"))
	}
	h.respond(c, state, err)
}

func (h *SessionHandler) finalize(c *gin.Context) {
	state, err := h.service.Finalize(c.Request.Context(), c.Param("id"))
	h.respond(c, state, err)
}

func (h *SessionHandler) reset(c *gin.Context) {
	state, err := h.service.Reset(c.Param("id"))
	h.respond(c, state, err)
}

func (h *SessionHandler) image(c *gin.Context) {
	img, err := h.service.Image(c.Param("id"), c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, img.MIMEType, img.Data)
}

func (h *SessionHandler) audio(c *gin.Context) {
	audio, err := h.service.Audio(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}

func (h *SessionHandler) listStorybooks(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive is disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	books, err := h.archive.ListRecent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("failed to list storybooks", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list storybooks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"storybooks": books})
}

func (h *SessionHandler) storybook(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive is disabled"})
		return
	}
	book, err := h.archive.GetBySession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrStorybookNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("failed to get storybook", "session_id", c.Param("id"), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get storybook"})
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *SessionHandler) respond(c *gin.Context, state session.State, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c, state))
}

func (h *SessionHandler) view(c *gin.Context, state session.State) session.View {
	return session.NewView(state, fmt.Sprintf("%s/sessions/%s", apiPrefix, state.ID))
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err.Error())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrImageNotFound),
		errors.Is(err, session.ErrNoAudio):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoImages),
		errors.Is(err, session.ErrTooManyImages),
		errors.Is(err, session.ErrEmptyImage),
		errors.Is(err, types.ErrUnknownGenre),
		errors.Is(err, types.ErrUnknownPurpose):
		return http.StatusBadRequest
	case errors.Is(err, imageutil.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, config.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func readImage(file *multipart.FileHeader) (types.Image, error) {
	f, err := file.Open()
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to read upload: %w", err)
	}
	mimeType, err := imageutil.DetectMIME(data)
	if err != nil {
		return types.Image{}, err
	}
	return types.Image{Data: data, MIMEType: mimeType}, nil
}
