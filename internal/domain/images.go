package domain

import (
	"strings"
)

// ImageStatus describes where an image stands in its lifecycle.
type ImageStatus string

// ImageStatusBuilt is reported for every image found in the registry.
const ImageStatusBuilt ImageStatus = "built"

const shortImageIDLength = 12

// ImageRecord is the UI-facing view of a course image. Records are derived
// from the registry on every listing and never persisted.
type ImageRecord struct {
	Repo           string      `json:"repo"`
	Ref            string      `json:"ref"`
	ImageName      string      `json:"image_name"`
	DisplayName    string      `json:"display_name"`
	ImageID        string      `json:"image_id"`
	ShortImageID   string      `json:"short_image_id"`
	ManifestDigest string      `json:"manifest_digest"`
	Status         ImageStatus `json:"status"`
	IsDefault      bool        `json:"default_course_image"`
	IsInitial      bool        `json:"initial_course_image"`
	Cmd            []string    `json:"cmd,omitempty"`
}

// ShortImageID returns the first 12 characters of the hash portion of a
// digest ("sha256:abcdef0123456789..." -> "abcdef012345").
func ShortImageID(digest string) string {
	_, encoded, found := strings.Cut(digest, ":")
	if !found {
		encoded = digest
	}
	if len(encoded) > shortImageIDLength {
		return encoded[:shortImageIDLength]
	}
	return encoded
}

// FullImageName prefixes an image name with the registry host, which is
// the form a container runtime needs to pull it.
func FullImageName(host, imageName string) string {
	if host == "" {
		return imageName
	}
	return strings.TrimSuffix(host, "/") + "/" + imageName
}
