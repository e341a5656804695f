// Package delta extracts and normalizes the memory update block that the
// assistant appends to its replies.
package delta

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/glucomem/internal/model"
)

// Marker is the canonical token that precedes the delta block.
const Marker = "---MEMORY_UPDATE---"

// markerPattern tolerates case, spacing, and dash-count noise around the marker.
var markerPattern = regexp.MustCompile(`(?i)-{2,}\s*memory[\s_-]?update\s*-{2,}`)

// maxBraceAttempts bounds how many closing braces are tried, last to first.
const maxBraceAttempts = 16

// Extract returns the JSON text of the delta block in the assistant reply.
// found is false when the reply has no marker. When the marker is present but
// no parseable object follows it, the error wraps model.ErrMalformedDelta.
func Extract(text string) (raw string, found bool, err error) {
	loc := markerPattern.FindStringIndex(text)
	if loc == nil {
		return "", false, nil
	}
	rest := text[loc[1]:]

	open := strings.IndexByte(rest, '{')
	if open < 0 {
		return "", true, fmt.Errorf("%w: no opening brace after marker", model.ErrMalformedDelta)
	}
	body := rest[open:]

	// Trailing prose may follow the block, and it may itself contain braces.
	end := len(body)
	for attempt := 0; attempt < maxBraceAttempts; attempt++ {
		idx := strings.LastIndexByte(body[:end], '}')
		if idx < 0 {
			break
		}
		candidate := body[:idx+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true, nil
		}
		end = idx
	}
	if strings.IndexByte(body, '}') < 0 {
		return "", true, fmt.Errorf("%w: no closing brace", model.ErrMalformedDelta)
	}
	return "", true, fmt.Errorf("%w: invalid JSON", model.ErrMalformedDelta)
}

// Parse extracts and decodes the delta block into a loosely-typed object.
func Parse(text string) (map[string]any, bool, error) {
	raw, found, err := Extract(text)
	if err != nil || !found {
		return nil, found, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, true, fmt.Errorf("%w: %v", model.ErrMalformedDelta, err)
	}
	return obj, true, nil
}
