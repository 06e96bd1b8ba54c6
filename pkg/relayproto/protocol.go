// Package relayproto holds the HTTP surface shared by the relay server and its Go client.
package relayproto

import "net/url"

// Routes and field names of the relay HTTP API.
const (
	PathUpload     = "/upload"
	PathDownload   = "/download/{filename}"
	PathHealth     = "/health"
	DownloadPrefix = "/download/"

	FormFieldFile = "file"

	HeaderRequestID = "X-Request-ID"
)

// DownloadPath returns the relative download URL for a stored name.
func DownloadPath(storedName string) string {
	return DownloadPrefix + url.PathEscape(storedName)
}
