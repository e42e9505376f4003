package service

import (
	"context"
	"io"
)

// FileUploadService stores message attachments and hands back the URL that
// goes into a file message's fileUrl.
type FileUploadService interface {
	UploadFile(ctx context.Context, file io.Reader, fileType, folder string) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
	Close() error
}
