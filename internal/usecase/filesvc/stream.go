package filesvc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sir_venger/mediarelay/internal/models"
)

const copyBufferSize = 32 << 10

// Outcome классифицирует завершение отдачи файла клиенту.
type Outcome int

const (
	Completed Outcome = iota
	ClientAborted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case ClientAborted:
		return "client_aborted"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Transfer is the result of Copy. Err is nil only for Completed.
type Transfer struct {
	Outcome Outcome
	Written int64
	Err     error
}

// Download is an opened stored file ready to be streamed.
type Download struct {
	File models.StoredFile
	Body io.ReadSeekCloser
}

// Open находит файл по сохранённому имени и открывает его на чтение.
func (s *Files) Open(ctx context.Context, name string) (*Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, sf, err := s.Store.Open(name)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrDownloadFailed, err)
	}

	return &Download{File: sf, Body: f}, nil
}

// Copy streams src into dst. Any failure writing to dst, or cancellation of ctx,
// is reported as ClientAborted: the peer is gone and nothing more can be sent.
// Failures reading src are reported as Failed.
func Copy(ctx context.Context, dst io.Writer, src io.Reader) Transfer {
	buf := make([]byte, copyBufferSize)
	var t Transfer

	for {
		if err := ctx.Err(); err != nil {
			return t.finish(ClientAborted, err)
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			t.Written += int64(w)
			if werr != nil {
				return t.finish(ClientAborted, werr)
			}
			if w != n {
				return t.finish(ClientAborted, io.ErrShortWrite)
			}
		}

		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) {
			return t.finish(Completed, nil)
		}
		if ctx.Err() != nil {
			return t.finish(ClientAborted, ctx.Err())
		}
		return t.finish(Failed, fmt.Errorf("%w: %w", models.ErrDownloadFailed, rerr))
	}
}

func (t Transfer) finish(o Outcome, err error) Transfer {
	t.Outcome = o
	t.Err = err
	return t
}
