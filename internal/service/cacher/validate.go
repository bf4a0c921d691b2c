package cacher

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
)

// sniffLen is the number of leading bytes kept for signature checks,
// matching the detector's default read limit
const sniffLen = 3072

// SignatureUnknown is reported for binary content with no recognised signature
const SignatureUnknown = "application/octet-stream"

// DefaultAllowedContentTypes returns the content types accepted by default
func DefaultAllowedContentTypes() []string {
	return []string{
		"audio/*",
		"application/octet-stream",
		"binary/octet-stream",
		"application/ogg",
		"video/mp4",
		"video/webm",
	}
}

// Validator checks downloaded content before it is committed to the cache
type Validator struct {
	maxFileSize int64
	allowed     []string
}

// NewValidator creates a new Validator.
// An empty allow-list falls back to DefaultAllowedContentTypes.
func NewValidator(maxFileSize int64, allowed []string) *Validator {
	if len(allowed) == 0 {
		allowed = DefaultAllowedContentTypes()
	}
	normalized := make([]string, 0, len(allowed))
	for _, a := range allowed {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(a)))
	}
	return &Validator{
		maxFileSize: maxFileSize,
		allowed:     normalized,
	}
}

// MaxFileSize returns the size limit, 0 when unlimited
func (v *Validator) MaxFileSize() int64 {
	return v.maxFileSize
}

// CheckSize rejects sizes above the limit
func (v *Validator) CheckSize(size int64) error {
	if v.maxFileSize > 0 && size > v.maxFileSize {
		return fmt.Errorf("%w: %d bytes, limit %d", domain.ErrFileTooLarge, size, v.maxFileSize)
	}
	return nil
}

// CheckDeclared validates response headers before any byte is written.
// A missing content type is accepted; contentLength < 0 means unknown.
func (v *Validator) CheckDeclared(contentType string, contentLength int64) error {
	if err := v.CheckSize(contentLength); err != nil {
		return err
	}
	if strings.TrimSpace(contentType) == "" {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: unparseable %q", domain.ErrContentType, contentType)
	}
	for _, allowed := range v.allowed {
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
			if strings.HasPrefix(mediaType, prefix) {
				return nil
			}
			continue
		}
		if mediaType == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrContentType, mediaType)
}

// CheckSignature detects the format of a file from its leading bytes.
// Audio and audio-capable containers are accepted, as is content with no
// recognised signature. Any other detected format is rejected.
// Returns the detected media type.
func (v *Validator) CheckSignature(head []byte) (string, error) {
	detected := mimetype.Detect(head)
	mediaType, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		mediaType = detected.String()
	}

	if detected.Is(SignatureUnknown) || playableSignature(mediaType) {
		return mediaType, nil
	}
	return mediaType, fmt.Errorf("%w: looks like %s", domain.ErrInvalidContent, mediaType)
}

func playableSignature(mediaType string) bool {
	if strings.HasPrefix(mediaType, "audio/") || strings.HasPrefix(mediaType, "video/") {
		return true
	}
	switch mediaType {
	case "application/ogg", "application/vnd.rn-realmedia":
		return true
	}
	return false
}
