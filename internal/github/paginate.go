package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shurcooL/githubv4"
)

// collectPages drives cursor pagination. It stops when the server reports no
// further page or after maxPages pages (0 means no ceiling). Nodes gathered
// before an error are returned alongside it.
func collectPages[T any](maxPages int, fetch func(cursor *githubv4.String) ([]T, PageInfo, error)) ([]T, error) {
	var all []T
	var cursor *githubv4.String

	for pages := 1; ; pages++ {
		nodes, info, err := fetch(cursor)
		if err != nil {
			return all, err
		}
		all = append(all, nodes...)

		if !info.HasNextPage || (maxPages > 0 && pages >= maxPages) {
			return all, nil
		}
		next := info.EndCursor
		cursor = &next
	}
}

// paginate requests fixed-size REST pages starting at page 1 until a page
// comes back shorter than PerPage or maxPages is reached (0 means no ceiling).
func paginate[T any](ctx context.Context, c *Client, endpoint string, maxPages int) ([]T, error) {
	var all []T

	for page := 1; ; page++ {
		var batch []T
		if err := c.do(ctx, http.MethodGet, pageEndpoint(endpoint, page), nil, &batch); err != nil {
			return all, err
		}
		all = append(all, batch...)

		if len(batch) < PerPage || (maxPages > 0 && page >= maxPages) {
			return all, nil
		}
	}
}

func pageEndpoint(endpoint string, page int) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sper_page=%d&page=%d", endpoint, sep, PerPage, page)
}
