package filesvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/internal/storage"
)

const commitAttempts = 3

// Upload пишет поток во временный файл и публикует его под сгенерированным именем.
// При любой ошибке временный файл удаляется.
func (s *Files) Upload(ctx context.Context, originalName string, src io.Reader) (models.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredFile{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
	}

	pending, err := s.Store.Create()
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
	}

	stored, err := s.write(pending, originalName, src)
	if err != nil {
		_ = pending.Abort()
		return models.StoredFile{}, err
	}

	stored.OriginalName = originalName
	return stored, nil
}

// write копирует поток в staging-файл с учётом лимита и фиксирует его под новым именем.
func (s *Files) write(pending *storage.Pending, originalName string, src io.Reader) (models.StoredFile, error) {
	limit := s.MaxFileSize()
	reader := src
	if limit > 0 && limit < math.MaxInt64 {
		reader = io.LimitReader(src, limit+1)
	}

	// Read errors keep their cause so the transport can recognise its own body limits.
	n, err := io.Copy(pending, reader)
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
	}
	if limit > 0 && n > limit {
		return models.StoredFile{}, models.TooLarge(limit)
	}

	for attempt := 0; attempt < commitAttempts; attempt++ {
		stored, err := pending.Commit(s.Namer.Generate(originalName))
		if errors.Is(err, models.ErrNameTaken) {
			continue
		}
		if err != nil {
			return models.StoredFile{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
		}
		return stored, nil
	}

	return models.StoredFile{}, fmt.Errorf("%w: %w", models.ErrUploadFailed, models.ErrNameTaken)
}
