package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
)

var (
	errMissingFile   = errors.New("missing file")
	errFileTooLarge  = errors.New("file too large")
	errMaliciousFile = errors.New("malicious file detected")
)

// objectStorage 是处理器用到的对象存储能力，由 *storage.Client 实现。
type objectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	GeneratePresignedURLWithParams(ctx context.Context, objectKey string, duration time.Duration, params map[string]string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// VirusScanner 在上传前检查文件内容。
type VirusScanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

type clamdScanner struct {
	client *clamd.Clamd
}

// NewVirusScanner 返回基于 clamd 的扫描器。addr 为空时不扫描。
func NewVirusScanner(addr string, logger *slog.Logger) VirusScanner {
	if addr == "" {
		if logger != nil {
			logger.Warn("clamd address not configured, uploads will not be scanned")
		}
		return noopScanner{}
	}
	return &clamdScanner{client: clamd.NewClamd(addr)}
}

func (s *clamdScanner) Scan(ctx context.Context, r io.Reader) error {
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := s.client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}

	var infected bool
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-scanChan:
			if !ok {
				if infected {
					return errMaliciousFile
				}
				return nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				infected = true
			default:
				return fmt.Errorf("scan result %s: %s", result.Status, result.Description)
			}
		}
	}
}

type noopScanner struct{}

func (noopScanner) Scan(context.Context, io.Reader) error { return nil }

// uploadedFile 是一个通过大小与病毒检查的上传文件。
type uploadedFile struct {
	header *multipart.FileHeader
}

func (f uploadedFile) Filename() string { return f.header.Filename }
func (f uploadedFile) Size() int64      { return f.header.Size }

func (f uploadedFile) ContentType() string {
	if ct := f.header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (f uploadedFile) Open() (multipart.File, error) { return f.header.Open() }

// checkUpload 校验大小并扫描文件。扫描与上传各自打开一次文件。
func checkUpload(ctx context.Context, scanner VirusScanner, header *multipart.FileHeader, maxBytes int64) (uploadedFile, error) {
	if header == nil {
		return uploadedFile{}, errMissingFile
	}
	if maxBytes > 0 && header.Size > maxBytes {
		return uploadedFile{}, errFileTooLarge
	}

	reader, err := header.Open()
	if err != nil {
		return uploadedFile{}, fmt.Errorf("open upload: %w", err)
	}
	err = scanner.Scan(ctx, reader)
	reader.Close()
	if err != nil {
		return uploadedFile{}, err
	}
	return uploadedFile{header: header}, nil
}

// storeUpload 把已检查的文件写入对象存储。
func storeUpload(ctx context.Context, objects objectStorage, objectKey string, file uploadedFile) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("reopen upload: %w", err)
	}
	defer reader.Close()

	if _, err := objects.UploadFile(ctx, objectKey, reader, file.Size(), file.ContentType()); err != nil {
		return fmt.Errorf("upload object %q: %w", objectKey, err)
	}
	return nil
}

func writeUploadError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, errMissingFile):
		BadRequest(c, "missing file")
	case errors.Is(err, errFileTooLarge):
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
	case errors.Is(err, errMaliciousFile):
		logger.Warn("malicious upload rejected")
		BadRequest(c, "malicious file detected")
	default:
		logger.Error("scan file failed", slog.Any("error", err))
		Internal(c, "failed to scan file")
	}
}
