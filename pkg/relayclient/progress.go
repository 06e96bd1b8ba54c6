package relayclient

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	progressBarWidth     = 32
	progressRenderPeriod = 120 * time.Millisecond
)

// progressBar рисует ASCII-индикатор передачи в out. Нулевой *progressBar ничего не делает.
type progressBar struct {
	out      io.Writer
	label    string
	total    int64
	current  int64
	last     time.Time
	width    int
	finished bool
	mu       sync.Mutex
}

func newProgressBar(out io.Writer, label string, total int64) *progressBar {
	if out == nil {
		return nil
	}
	return &progressBar{out: out, label: label, total: total}
}

func (p *progressBar) Add(n int64) {
	if p == nil || n <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.current += n

	now := time.Now()
	if now.Sub(p.last) < progressRenderPeriod {
		return
	}
	p.last = now
	p.printLocked(p.lineLocked(), "")
}

func (p *progressBar) Finish() { p.complete(nil) }

func (p *progressBar) Fail(err error) {
	if err == nil {
		err = errors.New("failed")
	}
	p.complete(err)
}

func (p *progressBar) complete(err error) {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true

	line := p.lineLocked() + " ✓"
	if err != nil {
		line = p.lineLocked() + " ✗ " + err.Error()
	}
	p.printLocked(line, "\n")
}

// printLocked перерисовывает строку, затирая хвост предыдущей.
func (p *progressBar) printLocked(line, end string) {
	pad := ""
	if p.width > len(line) {
		pad = strings.Repeat(" ", p.width-len(line))
	}
	p.width = len(line)
	fmt.Fprintf(p.out, "\r%s%s%s", line, pad, end)
}

func (p *progressBar) lineLocked() string {
	if p.total <= 0 {
		return fmt.Sprintf("%s %s transferred", p.label, humanBytes(p.current))
	}

	ratio := min(float64(p.current)/float64(p.total), 1)
	filled := min(int(ratio*progressBarWidth+0.5), progressBarWidth)

	return fmt.Sprintf("%s [%s%s] %3d%% %s/%s",
		p.label,
		strings.Repeat("=", filled),
		strings.Repeat(" ", progressBarWidth-filled),
		int(ratio*100+0.5),
		humanBytes(p.current),
		humanBytes(p.total),
	)
}

type progressWriter struct {
	bar *progressBar
}

func (w progressWriter) Write(b []byte) (int, error) {
	w.bar.Add(int64(len(b)))
	return len(b), nil
}

// progressReadCloser двигает индикатор по мере чтения тела ответа.
type progressReadCloser struct {
	io.ReadCloser
	bar *progressBar
}

func newProgressReadCloser(inner io.ReadCloser, bar *progressBar) io.ReadCloser {
	if bar == nil {
		return inner
	}
	return &progressReadCloser{ReadCloser: inner, bar: bar}
}

func (p *progressReadCloser) Read(b []byte) (int, error) {
	n, err := p.ReadCloser.Read(b)
	p.bar.Add(int64(n))
	switch {
	case err == io.EOF:
		p.bar.Finish()
	case err != nil:
		p.bar.Fail(err)
	}
	return n, err
}

func (p *progressReadCloser) Close() error {
	err := p.ReadCloser.Close()
	// Закрытие до EOF считается прерванной передачей.
	p.bar.Fail(fmt.Errorf("closed after %s", humanBytes(p.bar.transferred())))
	return err
}

func (p *progressBar) transferred() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func humanBytes(v int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	value := float64(v)
	unit := 0
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", v, units[unit])
	}
	return fmt.Sprintf("%.1f %s", value, units[unit])
}
