package handler

import (
	"errors"
	"io"
	"net/http"

	"huddle-chat/internal/domain/upload"
	"huddle-chat/internal/middleware"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"
	huddle_errors "huddle-chat/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UploadHandler struct {
	service *services.UploadService
}

func NewUploadHandler(service *services.UploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

func (h *UploadHandler) Initiate(c *gin.Context) {
	var req httpdto.InitiateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	in := services.InitiateUploadInput{
		FileName:       req.FileName,
		TotalSizeBytes: req.TotalSizeBytes,
		MimeType:       req.MimeType,
		ChunkSizeBytes: req.ChunkSizeBytes,
		Checksum:       req.Checksum,
		UploaderID:     middleware.UploaderID(c),
	}
	if req.ChatroomID != "" {
		id, err := uuid.Parse(req.ChatroomID)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid chatroom_id", "INVALID_REQUEST"))
			return
		}
		in.ChatroomID = &id
	}
	if req.ThreadID != "" {
		id, err := uuid.Parse(req.ThreadID)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid thread_id", "INVALID_REQUEST"))
			return
		}
		in.ThreadID = &id
	}

	session, err := h.service.InitiateUpload(c.Request.Context(), in)
	if err != nil {
		respondUploadError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.NewUploadSessionDTO(session)))
}

func (h *UploadHandler) UploadChunk(c *gin.Context) {
	sessionID := c.Param("session_id")

	var form httpdto.UploadChunkForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}
	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("chunk file is required", "INVALID_REQUEST"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("could not read chunk", "INVALID_REQUEST"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("could not read chunk", "INVALID_REQUEST"))
		return
	}

	session, err := h.service.UploadChunk(c.Request.Context(), services.UploadChunkInput{
		SessionID:  sessionID,
		ChunkIndex: form.ChunkIndex,
		Checksum:   form.Checksum,
		Data:       data,
		IsFinal:    form.IsFinal,
	})
	if err != nil {
		respondUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewUploadSessionDTO(session)))
}

func (h *UploadHandler) GetSession(c *gin.Context) {
	session, err := h.service.GetUploadSession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewUploadSessionDTO(session)))
}

func (h *UploadHandler) Cancel(c *gin.Context) {
	session, err := h.service.CancelUpload(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		respondUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewUploadSessionDTO(session)))
}

func (h *UploadHandler) List(c *gin.Context) {
	uploaderID := middleware.UploaderID(c)
	var (
		sessions []upload.UploadSession
		err      error
	)
	if c.Query("in_progress") == "true" {
		sessions, err = h.service.GetInProgressUploads(c.Request.Context(), uploaderID)
	} else {
		sessions, err = h.service.GetUserUploadSessions(c.Request.Context(), uploaderID)
	}
	if err != nil {
		respondUploadError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.NewListUploadsResponse(sessions)))
}

// respondUploadError maps the engine's error taxonomy onto HTTP status
// codes.
func respondUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, huddle_errors.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse(err.Error(), "SESSION_NOT_FOUND"))
	case errors.Is(err, huddle_errors.ErrInvalidChunkSequence):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "INVALID_CHUNK_SEQUENCE"))
	case errors.Is(err, huddle_errors.ErrInvalidState):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), "INVALID_STATE"))
	case errors.Is(err, huddle_errors.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, httpdto.NewErrorResponse(err.Error(), "CHUNK_TOO_LARGE"))
	case errors.Is(err, huddle_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), "INVALID_REQUEST"))
	case errors.Is(err, huddle_errors.ErrFinalizeFailed):
		c.JSON(http.StatusBadGateway, httpdto.NewErrorResponse(err.Error(), "FINALIZE_FAILED"))
	case errors.Is(err, huddle_errors.ErrStorageFailure):
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "STORAGE_FAILURE"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse(err.Error(), "INTERNAL_ERROR"))
	}
}
