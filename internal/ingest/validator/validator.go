// Package validator checks ingestion requests before any storage work
// happens, returning per-field error details.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bookquest-ai/bookquest/internal/ingest"
)

const (
	maxSlugLength  = 64
	maxTitleLength = 512
	maxTextLength  = 32 << 20
	minTextLength  = 1
)

// Slugs become chunk id prefixes and Qdrant payload values, so they stay
// constrained to lowercase word characters and hyphens.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks slug shape, title presence, and text bounds.
func ValidateIngestRequest(req *ingest.IngestRequest) error {
	errs := make(map[string]string)

	slug := strings.TrimSpace(req.Slug)
	switch {
	case slug == "":
		errs["slug"] = "slug is required"
	case len(slug) > maxSlugLength:
		errs["slug"] = fmt.Sprintf("slug must be at most %d characters", maxSlugLength)
	case !slugPattern.MatchString(slug):
		// Underscores separate the id fields, so slugs cannot carry them.
		errs["slug"] = "slug must be lowercase letters, digits, and hyphens"
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}

	text := strings.TrimSpace(req.Text)
	if len(text) < minTextLength {
		errs["text"] = "text is required and must not be empty"
	} else if len(text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
