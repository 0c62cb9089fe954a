package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportError_Is(t *testing.T) {
	notFound := &TransportError{Op: "get manifest", Method: http.MethodGet, URL: "http://r/v2/a/manifests/b", StatusCode: http.StatusNotFound}
	forbidden := &TransportError{Op: "list catalog", Method: http.MethodGet, URL: "http://r/v2/_catalog", StatusCode: http.StatusForbidden}
	refused := &TransportError{Op: "list catalog", Method: http.MethodGet, URL: "http://r/v2/_catalog", Err: errors.New("connection refused")}

	assert.ErrorIs(t, notFound, ErrNotFound)
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", notFound)))
	assert.NotErrorIs(t, notFound, ErrUnauthorized)

	assert.ErrorIs(t, forbidden, ErrUnauthorized)
	assert.False(t, IsNotFound(forbidden))

	assert.False(t, IsNotFound(refused))
	assert.Contains(t, refused.Error(), "connection refused")
}

func TestTransportError_WrapsMountUnsupported(t *testing.T) {
	err := &TransportError{
		Op:         "mount blob",
		Method:     http.MethodPost,
		URL:        "http://r/v2/dst/blobs/uploads/",
		StatusCode: http.StatusAccepted,
		Err:        ErrMountUnsupported,
	}

	assert.ErrorIs(t, err, ErrMountUnsupported)

	var te *TransportError
	assert.True(t, errors.As(fmt.Errorf("promote: %w", err), &te))
	assert.Equal(t, http.StatusAccepted, te.StatusCode)
}

func TestTransportError_Error(t *testing.T) {
	withCodes := &TransportError{Op: "get manifest", Method: "GET", URL: "u", StatusCode: 404, Body: `{"errors":[]}`, Codes: []string{"MANIFEST_UNKNOWN"}}
	assert.Equal(t, "get manifest: GET u: status 404 (MANIFEST_UNKNOWN)", withCodes.Error())

	withBody := &TransportError{Op: "get blob", Method: "GET", URL: "u", StatusCode: 500, Body: "boom"}
	assert.Equal(t, `get blob: GET u: status 500: "boom"`, withBody.Error())
}

func TestMalformedResponseError(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := &MalformedResponseError{What: "manifest", Err: cause}

	assert.Equal(t, "malformed manifest: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "malformed catalog", (&MalformedResponseError{What: "catalog"}).Error())
}
