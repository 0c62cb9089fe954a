// Package validation checks registry names, references and digests before
// they are placed in request paths.
package validation

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
)

const nameComponent = `[a-z0-9]+(?:(?:[._]|__|-+)[a-z0-9]+)*`

var (
	// path components: lowercase alphanumerics joined by ".", "_", "__" or
	// any run of "-"
	repoNameRegex = regexp.MustCompile(`^` + nameComponent + `(?:/` + nameComponent + `)*$`)
	tagRegex      = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)
)

// MaxRepositoryNameLength is the longest repository name accepted.
const MaxRepositoryNameLength = 255

// ValidateRepositoryName rejects names the registry would not route,
// including anything that could escape the /v2/<name>/ prefix.
func ValidateRepositoryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("repository name cannot be empty")
	case len(name) > MaxRepositoryNameLength:
		return fmt.Errorf("repository name too long: %d chars (max %d)", len(name), MaxRepositoryNameLength)
	case !repoNameRegex.MatchString(name):
		return fmt.Errorf("invalid repository name %q", name)
	}
	return nil
}

// ValidateReference accepts a tag or a digest.
func ValidateReference(reference string) error {
	if reference == "" {
		return fmt.Errorf("reference cannot be empty")
	}
	if strings.Contains(reference, ":") {
		if err := ValidateDigest(reference); err != nil {
			return fmt.Errorf("invalid reference %q: %w", reference, err)
		}
		return nil
	}
	if !tagRegex.MatchString(reference) {
		return fmt.Errorf("invalid tag %q", reference)
	}
	return nil
}

// ValidateDigest checks an algorithm:hex content digest with a registered
// algorithm and the matching hex length.
func ValidateDigest(d string) error {
	if d == "" {
		return fmt.Errorf("digest cannot be empty")
	}
	if _, err := digest.Parse(d); err != nil {
		return fmt.Errorf("invalid digest %q: %w", d, err)
	}
	return nil
}

// IsDigest reports whether s is a valid content digest.
func IsDigest(s string) bool {
	return ValidateDigest(s) == nil
}

// ValidateUUID checks a blob upload session id.
func ValidateUUID(id string) error {
	if id == "" {
		return fmt.Errorf("upload id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return fmt.Errorf("invalid upload id %q", id)
	}
	return nil
}

// ValidateRegistryHost checks a configured host[:port]. The scheme comes from
// the insecure flag and the API path is fixed, so neither may appear here.
func ValidateRegistryHost(host string) error {
	if host == "" {
		return fmt.Errorf("registry host cannot be empty")
	}
	if strings.Contains(host, "://") {
		return fmt.Errorf("registry host must not include a scheme")
	}

	name := host
	if strings.Contains(host, ":") {
		h, port, err := net.SplitHostPort(host)
		if err != nil {
			return fmt.Errorf("invalid registry host %q: %w", host, err)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("invalid registry port %q", port)
		}
		name = h
	}

	if !hostnameRegex.MatchString(name) {
		return fmt.Errorf("invalid registry host %q: expected host or host:port", host)
	}
	return nil
}
