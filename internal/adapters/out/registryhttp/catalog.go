package registryhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bnema/courseimages/internal/adapters/dto"
	"github.com/bnema/courseimages/internal/domain"
)

// ListRepositories returns every repository of the catalog, following
// Link pagination.
func (c *Client) ListRepositories(ctx context.Context) ([]string, error) {
	var repositories []string

	next := c.endpoint("_catalog", url.Values{"n": {strconv.Itoa(catalogPageSize)}})
	for next != nil {
		resp, err := c.do(ctx, request{
			op:     "list catalog",
			method: http.MethodGet,
			url:    next,
			accept: domain.MediaTypeJSON,
		}, maxJSONBytes, http.StatusOK)
		if err != nil {
			return nil, err
		}

		var page dto.CatalogResponse
		if err := json.Unmarshal(resp.body, &page); err != nil {
			return nil, &domain.MalformedResponseError{What: "catalog", Err: err}
		}
		repositories = append(repositories, page.Repositories...)

		if next, err = c.nextPage(resp.header); err != nil {
			return nil, err
		}
	}

	return repositories, nil
}

// ListTags returns the tags of a repository. A null or absent tag list is
// returned as an empty slice.
func (c *Client) ListTags(ctx context.Context, name string) ([]string, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	tags := []string{}
	next := c.endpoint(name+"/tags/list", nil)
	for next != nil {
		resp, err := c.do(ctx, request{
			op:     "list tags",
			method: http.MethodGet,
			url:    next,
			accept: domain.MediaTypeJSON,
		}, maxJSONBytes, http.StatusOK)
		if err != nil {
			return nil, err
		}

		var page dto.TagListResponse
		if err := json.Unmarshal(resp.body, &page); err != nil {
			return nil, &domain.MalformedResponseError{What: "tag list", Err: err}
		}
		tags = append(tags, page.Tags...)

		if next, err = c.nextPage(resp.header); err != nil {
			return nil, err
		}
	}

	return tags, nil
}
