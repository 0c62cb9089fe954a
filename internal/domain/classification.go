package domain

// ClassificationKind tells what a registry image is from the course point of view.
type ClassificationKind int

const (
	// KindNotCourseImage is any image that is neither configured nor labelled.
	KindNotCourseImage ClassificationKind = iota
	// KindDefault is the configured default course image pointer.
	KindDefault
	// KindInitial is the configured initial course image.
	KindInitial
	// KindBuilt is an image built from a course repository.
	KindBuilt
)

func (k ClassificationKind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindInitial:
		return "initial"
	case KindBuilt:
		return "built"
	default:
		return "not-a-course-image"
	}
}

// CourseImages holds the configured default and initial image coordinates.
type CourseImages struct {
	Default Coordinate
	Initial Coordinate
}

// Classification is the result of Classify. Record is only meaningful for
// KindInitial and KindBuilt; digest fields are left to the caller.
type Classification struct {
	Kind   ClassificationKind
	Record ImageRecord
}

// Classify decides what the image tagged name:ref is, from its config labels
// and the configured coordinates. Checks run in order: default, initial,
// built, and everything else is not a course image.
func Classify(name, ref string, labels map[string]string, images CourseImages) Classification {
	imageName := name + ":" + ref

	if images.Default.Matches(name, ref) {
		return Classification{Kind: KindDefault}
	}

	if images.Initial.Matches(name, ref) {
		return Classification{
			Kind: KindInitial,
			Record: ImageRecord{
				Repo:        PlaceholderRepository,
				Ref:         PlaceholderRepository,
				ImageName:   imageName,
				DisplayName: "initial",
				Status:      ImageStatusBuilt,
				IsInitial:   true,
			},
		}
	}

	if labels[LabelImageName] != imageName {
		return Classification{Kind: KindNotCourseImage}
	}
	repo, hasRepo := labels[LabelRepo2DockerRepo]
	sourceRef, hasRef := labels[LabelRepo2DockerRef]
	if !hasRepo || !hasRef {
		return Classification{Kind: KindNotCourseImage}
	}

	displayName := labels[LabelDisplayName]
	if displayName == "" {
		displayName = imageName
	}

	return Classification{
		Kind: KindBuilt,
		Record: ImageRecord{
			Repo:        repo,
			Ref:         sourceRef,
			ImageName:   imageName,
			DisplayName: displayName,
			Status:      ImageStatusBuilt,
		},
	}
}
