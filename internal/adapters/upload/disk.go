// Package upload stores message attachments on local disk.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Route is the URL prefix under which stored files are served.
const Route = "/uploads"

var (
	ErrEmptyFile  = errors.New("attachment is empty")
	ErrTooLarge   = errors.New("attachment exceeds size limit")
	ErrForeignURL = errors.New("attachment not stored by this uploader")
)

type DiskUploader struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewDiskUploader writes into dir and builds URLs as publicURL + Route.
// maxBytes <= 0 disables the size check.
func NewDiskUploader(dir, publicURL string, maxBytes int64) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &DiskUploader{
		dir:      dir,
		baseURL:  strings.TrimRight(publicURL, "/") + Route,
		maxBytes: maxBytes,
	}, nil
}

func (u *DiskUploader) Dir() string { return u.dir }

func (u *DiskUploader) Upload(ctx context.Context, roomID domain.RoomID, up domain.Upload) (domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, err
	}
	size := int64(len(up.Data))
	if size == 0 {
		return domain.Attachment{}, ErrEmptyFile
	}
	if u.maxBytes > 0 && size > u.maxBytes {
		return domain.Attachment{}, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, u.maxBytes)
	}

	mt := mimetype.Detect(up.Data)
	id := uuid.NewString()
	name := id + mt.Extension()
	if err := os.WriteFile(filepath.Join(u.dir, name), up.Data, 0o644); err != nil {
		return domain.Attachment{}, fmt.Errorf("write attachment: %w", err)
	}

	fileName := filepath.Base(strings.TrimSpace(up.FileName))
	if fileName == "." || fileName == string(filepath.Separator) {
		fileName = name
	}
	log.Debug().Str("module", "upload").Str("room", string(roomID)).Str("file", name).Str("mime", mt.String()).Int64("size", size).Msg("stored attachment")
	return domain.Attachment{
		ID:       id,
		URL:      u.baseURL + "/" + name,
		FileName: fileName,
		MimeType: mt.String(),
		Size:     size,
	}, nil
}

// Remove deletes the file behind att. A file already gone is not an error.
func (u *DiskUploader) Remove(ctx context.Context, att domain.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, ok := strings.CutPrefix(att.URL, u.baseURL+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %s", ErrForeignURL, att.URL)
	}
	if err := os.Remove(filepath.Join(u.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	log.Debug().Str("module", "upload").Str("file", name).Msg("removed attachment")
	return nil
}
