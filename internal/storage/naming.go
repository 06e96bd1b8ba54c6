package storage

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	fallbackBaseName = "file"
	randomSuffixMax  = 1_000_000_000

	// MaxNameBytes is the usual filesystem limit for one path element.
	MaxNameBytes = 255
	// Longer "extensions" are kept as part of the base name.
	maxExtBytes = 32
)

// NameGenerator turns an untrusted original file name into a stored name.
type NameGenerator interface {
	Generate(originalName string) string
}

// NameFunc adapts a plain function to NameGenerator.
type NameFunc func(originalName string) string

// Generate calls f.
func (f NameFunc) Generate(originalName string) string { return f(originalName) }

// TimestampNamer produces "<base>-<unix millis>-<random><ext>" names.
// Zero value is ready to use.
type TimestampNamer struct {
	Now  func() time.Time
	Rand func() int
}

var _ NameGenerator = TimestampNamer{}

// Generate implements NameGenerator.
func (n TimestampNamer) Generate(originalName string) string {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	random := func() int { return rand.IntN(randomSuffixMax) }
	if n.Rand != nil {
		random = n.Rand
	}

	base, ext := SplitName(originalName)
	suffix := fmt.Sprintf("-%d-%d", now().UnixMilli(), random())

	return truncateUTF8(base, MaxNameBytes-len(suffix)-len(ext)) + suffix + ext
}

// SplitName sanitizes an original name and splits it into base and extension.
// A dot-file such as ".env" has no extension.
func SplitName(originalName string) (base, ext string) {
	name := sanitize(filepath.Base(originalName))

	ext = filepath.Ext(name)
	if len(ext) > maxExtBytes {
		ext = ""
	}
	base = strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}
	if base == "" || base == "." || base == ".." {
		base, ext = fallbackBaseName, ""
	}

	return base, ext
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
