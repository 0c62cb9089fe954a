package domain

// Label keys read from the image config of images built by repo2docker.
const (
	// Set by repo2docker itself.
	LabelRepo2DockerRepo = "repo2docker.repo"
	LabelRepo2DockerRef  = "repo2docker.ref"

	// Set by the course image builder.
	LabelImageName   = "cwh_repo2docker.image_name"
	LabelDisplayName = "cwh_repo2docker.display_name"
)
