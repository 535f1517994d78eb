package utils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

const defaultMaxUploadMB = 50

var (
	ErrNoFile       = errors.New("no file uploaded")
	ErrFileTooLarge = errors.New("file size exceeds limit")
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	ValidateImageFile(file *multipart.FileHeader) error
	ReadFile(file *multipart.FileHeader) ([]byte, error)
	MaxFileSize() int64
}

type utils struct {
	maxFileSize int64
}

func New() IUtils {
	return &utils{
		maxFileSize: int64(MaxUploadMB()) * 1024 * 1024,
	}
}

// MaxUploadMB reads MAX_UPLOAD_MB, falling back to 50 on a missing or bad value.
func MaxUploadMB() int {
	mb, err := strconv.Atoi(os.Getenv("MAX_UPLOAD_MB"))
	if err != nil || mb <= 0 {
		return defaultMaxUploadMB
	}
	return mb
}

func (u *utils) MaxFileSize() int64 {
	return u.maxFileSize
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// ValidateImageFile checks presence and size only. The content type is left to
// the decoder, which is the authority on what counts as an image.
func (u *utils) ValidateImageFile(file *multipart.FileHeader) error {
	if file == nil {
		return ErrNoFile
	}

	if file.Size > u.maxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, file.Size)
	}

	return nil
}

func (u *utils) ReadFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return io.ReadAll(src)
}
