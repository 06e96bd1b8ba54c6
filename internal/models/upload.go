package models

// UploadResult is the body of a successful POST /upload.
type UploadResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	FullURL      string `json:"fullUrl"`
}
