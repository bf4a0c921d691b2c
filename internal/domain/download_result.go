package domain

// DownloadResult represents the result of a file download operation
type DownloadResult struct {
	// CachePath is the local path where the file was saved
	CachePath string

	// BytesWritten is the total bytes written to disk
	BytesWritten int64

	// ContentType is the declared content type of the response
	ContentType string

	// Attempts is the number of requests issued, including retries
	Attempts int

	// Signature is the media type detected from the leading bytes,
	// application/octet-stream when unrecognised
	Signature string
}
