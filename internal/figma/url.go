package figma

import (
	"net/url"
	"strings"

	apperrors "sentinel/internal/errors"
)

// ParseFileURL extracts the file key and, when present, the node id from a
// shared design URL. Both /file/<key> and /design/<key> paths are accepted;
// the node-id query value uses '-' where the API expects ':'.
func ParseFileURL(raw string) (fileKey, nodeID string, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return "", "", apperrors.Validation("invalid design URL: " + parseErr.Error())
	}
	if !strings.HasSuffix(u.Hostname(), "figma.com") {
		return "", "", apperrors.Validation("not a figma.com URL: " + raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || (segments[0] != "file" && segments[0] != "design") {
		return "", "", apperrors.Validation("URL does not reference a design file: " + raw)
	}
	fileKey = segments[1]
	if fileKey == "" {
		return "", "", apperrors.Validation("URL has an empty file key: " + raw)
	}

	if id := u.Query().Get("node-id"); id != "" {
		nodeID = strings.ReplaceAll(id, "-", ":")
	}
	return fileKey, nodeID, nil
}
