package registrytest

import (
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type descriptor struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
}

// manifest is a schema-v2 manifest laid out as docker push writes it.
type manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	MediaType     string       `json:"mediaType,omitempty"`
	Config        descriptor   `json:"config"`
	Layers        []descriptor `json:"layers"`
}

func buildConfig(img Image) []byte {
	diffIDs := make([]digest.Digest, 0, len(img.Layers))
	for _, layer := range img.Layers {
		diffIDs = append(diffIDs, digest.FromBytes(layer))
	}

	cfg := ocispec.Image{
		Platform: ocispec.Platform{Architecture: "amd64", OS: "linux"},
		Config: ocispec.ImageConfig{
			Labels:     img.Labels,
			Entrypoint: img.Entrypoint,
			Cmd:        img.Cmd,
		},
		RootFS: ocispec.RootFS{Type: "layers", DiffIDs: diffIDs},
	}
	if img.ConfigExtra != "" {
		cfg.Config.Env = []string{"REGISTRYTEST_EXTRA=" + img.ConfigExtra}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		panic(fmt.Sprintf("registrytest: marshal config: %v", err))
	}
	return raw
}

// CourseImage returns an image labelled the way repo2docker builds course
// images for name:tag.
func CourseImage(imageName, displayName, sourceRepo, sourceRef string, layers ...[]byte) Image {
	labels := map[string]string{
		"repo2docker.repo":           sourceRepo,
		"repo2docker.ref":            sourceRef,
		"cwh_repo2docker.image_name": imageName,
	}
	if displayName != "" {
		labels["cwh_repo2docker.display_name"] = displayName
	}
	return Image{
		Labels: labels,
		Cmd:    []string{"jupyterhub-singleuser"},
		Layers: layers,
	}
}
