package registryhttp

import (
	// Register the hash implementations go-digest verifies against.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"

	"github.com/opencontainers/go-digest"

	"github.com/bnema/courseimages/internal/domain"
)

// verifyContent checks that content hashes to expected.
func verifyContent(expected string, content []byte) error {
	dgst, err := digest.Parse(expected)
	if err != nil {
		return fmt.Errorf("%w %q: %v", domain.ErrInvalidDigest, expected, err)
	}

	verifier := dgst.Verifier()
	if _, err := verifier.Write(content); err != nil {
		return fmt.Errorf("verify %s: %w", dgst, err)
	}
	if !verifier.Verified() {
		return fmt.Errorf("%w: expected %s, got %s", domain.ErrDigestMismatch, dgst, dgst.Algorithm().FromBytes(content))
	}
	return nil
}

// contentDigest returns the canonical digest of content.
func contentDigest(content []byte) string {
	return digest.FromBytes(content).String()
}
