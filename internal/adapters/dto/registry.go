// Package dto holds the JSON bodies of the registry v2 HTTP API.
package dto

import "encoding/json"

// CatalogResponse is one page of GET /v2/_catalog.
type CatalogResponse struct {
	Repositories []string `json:"repositories"`
}

// TagListResponse is one page of GET /v2/<name>/tags/list. Tags is null for
// a repository whose tags were all deleted.
type TagListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// RegistryError is a single entry of a registry error body.
type RegistryError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// RegistryErrorResponse is the error envelope every v2 endpoint may return.
type RegistryErrorResponse struct {
	Errors []RegistryError `json:"errors"`
}
