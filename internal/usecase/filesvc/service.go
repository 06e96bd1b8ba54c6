package filesvc

import (
	"context"
	"io"
	"os"

	"github.com/sir_venger/mediarelay/internal/models"
	"github.com/sir_venger/mediarelay/internal/storage"
)

type (
	// Store is the on-disk side of the relay.
	Store interface {
		Create() (*storage.Pending, error)
		Open(name string) (*os.File, models.StoredFile, error)
	}

	// Service объединяет операции по загрузке и выдаче файлов.
	Service interface {
		Upload(ctx context.Context, originalName string, src io.Reader) (models.StoredFile, error)
		Open(ctx context.Context, name string) (*Download, error)
		MaxFileSize() int64
	}
)

type Deps struct {
	Store       Store
	Namer       storage.NameGenerator
	MaxFileSize int64
}

type Files struct {
	Deps
}

// New конструирует сервис загрузки с заданными зависимостями.
func New(deps Deps) *Files {
	if deps.Namer == nil {
		deps.Namer = storage.TimestampNamer{}
	}
	return &Files{Deps: deps}
}

var _ Service = (*Files)(nil)

// MaxFileSize returns the per-file byte limit.
func (s *Files) MaxFileSize() int64 {
	return s.Deps.MaxFileSize
}
