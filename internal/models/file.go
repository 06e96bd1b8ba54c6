package models

import "time"

// StoredFile describes a file committed to the storage root.
type StoredFile struct {
	Name         string    `json:"filename"`
	OriginalName string    `json:"originalName,omitempty"`
	Size         int64     `json:"size"`
	Path         string    `json:"-"`
	ModTime      time.Time `json:"-"`
}
