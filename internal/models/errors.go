package models

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// auth
	ErrMissingToken = errors.New("authentication token not provided")
	ErrInvalidToken = errors.New("invalid token")

	// upload validation
	ErrNoFile          = errors.New("no file was uploaded")
	ErrFileTooLarge    = errors.New("file too large")
	ErrMalformedUpload = errors.New("upload error")

	// download validation
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")

	// storage
	ErrNameTaken = errors.New("stored name already taken")

	// unexpected I/O
	ErrUploadFailed   = errors.New("error processing file upload")
	ErrDownloadFailed = errors.New("error processing file download")
)

// TooLarge returns ErrFileTooLarge carrying the size limit in MiB.
func TooLarge(limit int64) error {
	return fmt.Errorf("%w: maximum allowed size is %sMB", ErrFileTooLarge, FormatMB(limit))
}

// FormatMB renders n bytes as MiB without trailing zeros.
func FormatMB(n int64) string {
	return strconv.FormatFloat(float64(n)/(1<<20), 'f', -1, 64)
}
