package handler

import (
	"fmt"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"adchat/internal/domain/service"
	"adchat/internal/usecase"
	"adchat/pkg/errors"
	"adchat/pkg/logger"
	"adchat/pkg/response"
)

var allowedFileTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
	"image/gif":       {},
	"image/webp":      {},
	"application/pdf": {},
	"text/plain":      {},
}

// FileHandler stores attachments for file messages. The returned URL goes
// into the file_url of a following send.
type FileHandler struct {
	fileService   service.FileUploadService
	threadUseCase *usecase.ThreadUseCase
	maxFileSize   int64
}

func NewFileHandler(fileService service.FileUploadService, threadUseCase *usecase.ThreadUseCase, maxFileSize int64) *FileHandler {
	return &FileHandler{
		fileService:   fileService,
		threadUseCase: threadUseCase,
		maxFileSize:   maxFileSize,
	}
}

type uploadResult struct {
	FileURL  string `json:"file_url"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	Size     int64  `json:"size"`
}

func (h *FileHandler) UploadAttachment(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return response.Error(c, err)
	}

	ctx := c.Request().Context()
	thread, err := h.threadUseCase.GetThreadForUser(ctx, c.Param("id"), userID)
	if err != nil {
		return response.Error(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		logger.Error("Error getting file from form: %v", err)
		return response.Error(c, errors.BadRequest("Missing or invalid file", err))
	}

	logger.Debug("Received file: %s, size: %d bytes, type: %s", file.Filename, file.Size, file.Header.Get("Content-Type"))

	if file.Size > h.maxFileSize {
		logger.Warn("File too large: %d bytes (max: %d)", file.Size, h.maxFileSize)
		return response.Error(c, errors.BadRequest(fmt.Sprintf("File size exceeds maximum allowed (%dMB)", h.maxFileSize/(1024*1024)), nil))
	}

	fileType := file.Header.Get("Content-Type")
	if _, ok := allowedFileTypes[fileType]; !ok {
		logger.Warn("Invalid file type: %s", fileType)
		return response.Error(c, errors.BadRequest("File type not supported", nil))
	}

	src, err := file.Open()
	if err != nil {
		logger.Error("Error opening file: %v", err)
		return response.Error(c, errors.Internal("Unable to read file", err))
	}
	defer src.Close()

	url, err := h.fileService.UploadFile(ctx, src, fileType, "threads/"+thread.ID)
	if err != nil {
		logger.Error("Error from storage client: %v", err)
		return response.Error(c, errors.Internal("Failed to upload file", err))
	}

	return response.Created(c, uploadResult{
		FileURL:  url,
		FileName: filepath.Base(file.Filename),
		FileType: fileType,
		Size:     file.Size,
	})
}
