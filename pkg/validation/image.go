package validation

import "strings"

// ParseImageReference splits an image reference into name and tag/digest.
// Supports formats:
//   - name:tag
//   - name@sha256:... (digest)
//   - name (defaults to "latest")
//   - host:port/name:tag (the port colon is not a tag separator)
//
// A trailing ":" with no tag also yields "latest".
func ParseImageReference(imageRef string) (string, string) {
	if idx := strings.LastIndex(imageRef, "@"); idx != -1 {
		return imageRef[:idx], imageRef[idx+1:]
	}

	sep := strings.LastIndex(imageRef, ":")
	if sep == -1 || sep < strings.LastIndex(imageRef, "/") {
		return imageRef, "latest"
	}

	if sep == len(imageRef)-1 {
		return imageRef[:sep], "latest"
	}
	return imageRef[:sep], imageRef[sep+1:]
}
