package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SweepFunc receives the outcome of each periodic sweep.
type SweepFunc func(removed int, err error)

// StartSweeper periodically removes staging files older than ttl. Committed files
// are never touched. The returned function stops the sweeper and may be called
// more than once.
func StartSweeper(s *Store, ttl time.Duration, every time.Duration, report SweepFunc) func() {
	if every <= 0 || ttl <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(every)
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := s.SweepPartials(ttl)
				if report != nil {
					report(n, err)
				}
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			close(stop)
		})
	}
}

// SweepPartials removes abandoned staging files whose mtime is older than ttl.
func (s *Store) SweepPartials(ttl time.Duration) (int, error) {
	now := time.Now()
	entries, err := os.ReadDir(s.partial)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), partialSuffix) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < ttl {
			continue
		}

		if err = os.Remove(filepath.Join(s.partial, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}
