// Package files manages the documents a user has uploaded for retrieval.
package files

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/gateway"
)

const (
	CollectionPath = "/agenticai/files/"

	UploadFailedMessage = "Failed to upload file. Ensure it's PDF, DOCX, or TXT."
	ListFailedMessage   = "Failed to load files."
	DeleteFailedMessage = "Failed to delete file."
)

var AllowedExtensions = []string{".pdf", ".docx", ".txt"}

var ErrUnsupportedType = errors.New("unsupported file type")

type FileRecord struct {
	ID         int       `json:"id" yaml:"id"`
	File       string    `json:"file" yaml:"file"`
	UploadedAt time.Time `json:"uploaded_at" yaml:"uploaded_at"`
}

// Name is the basename of the stored file path or URL.
func (f FileRecord) Name() string {
	p := strings.TrimRight(f.File, "/")
	if p == "" {
		return ""
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Base(p)
}

func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

type Service struct {
	requester gateway.Requester
	logger    zerolog.Logger
}

func NewService(requester gateway.Requester) *Service {
	return &Service{
		requester: requester,
		logger:    log.With().Str("component", "files").Logger(),
	}
}

func (s *Service) List(ctx context.Context) ([]FileRecord, error) {
	resp, err := s.requester.Request(ctx, http.MethodGet, CollectionPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	var ret []FileRecord
	if err := resp.Decode(&ret); err != nil {
		return nil, errors.Wrap(err, "list files")
	}
	return ret, nil
}

// Upload sends the file at path as the multipart field "file".
func (s *Service) Upload(ctx context.Context, filePath string) (FileRecord, error) {
	if !Supported(filePath) {
		return FileRecord{}, errors.Wrapf(ErrUnsupportedType, "upload %s", filePath)
	}
	f, err := os.Open(filePath)
	if err != nil {
		return FileRecord{}, errors.Wrapf(err, "upload %s", filePath)
	}
	defer func() {
		_ = f.Close()
	}()
	return s.UploadReader(ctx, filepath.Base(filePath), f)
}

func (s *Service) UploadReader(ctx context.Context, name string, r io.Reader) (FileRecord, error) {
	if !Supported(name) {
		return FileRecord{}, errors.Wrapf(ErrUnsupportedType, "upload %s", name)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return FileRecord{}, errors.Wrap(err, "build multipart body")
	}
	n, err := io.Copy(part, r)
	if err != nil {
		return FileRecord{}, errors.Wrapf(err, "read %s", name)
	}
	if err := mw.Close(); err != nil {
		return FileRecord{}, errors.Wrap(err, "build multipart body")
	}

	s.logger.Debug().Str("name", name).Int64("bytes", n).Msg("uploading file")
	resp, err := s.requester.Request(ctx, http.MethodPost, CollectionPath, buf.Bytes(),
		gateway.WithContentType(mw.FormDataContentType()))
	if err != nil {
		return FileRecord{}, errors.Wrapf(err, "upload %s", name)
	}
	var rec FileRecord
	if err := resp.Decode(&rec); err != nil {
		return FileRecord{}, errors.Wrapf(err, "upload %s", name)
	}
	s.logger.Info().Int("id", rec.ID).Str("name", name).Msg("file uploaded")
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, id int) error {
	_, err := s.requester.Request(ctx, http.MethodDelete, fmt.Sprintf("%s%d/", CollectionPath, id), nil)
	if err != nil {
		return errors.Wrapf(err, "delete file %d", id)
	}
	s.logger.Info().Int("id", id).Msg("file deleted")
	return nil
}
