package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MCT-Salman/invocca/pkg/types"
)

// maxPageSize matches the server's pagination ceiling.
const maxPageSize = 200

// ListOptions configures a list request.
type ListOptions struct {
	Limit   int
	Offset  int
	Filters map[string]string
}

// Page is one page of a list response.
type Page[T any] struct {
	Items      []types.Resource[T]
	TotalCount int
}

// Resources is the typed CRUD surface of one collection.
type Resources[T any] struct {
	c    *Client
	name string
	kind string
}

// For returns the CRUD surface of collection name.
func For[T any](c *Client, name, kind string) *Resources[T] {
	return &Resources[T]{c: c, name: name, kind: kind}
}

// Halls returns the halls collection.
func (c *Client) Halls() *Resources[types.Hall] {
	return For[types.Hall](c, types.ResourceHalls, types.KindHall)
}

// Services returns the hall services collection.
func (c *Client) Services() *Resources[types.Service] {
	return For[types.Service](c, types.ResourceServices, types.KindService)
}

// Events returns the events collection.
func (c *Client) Events() *Resources[types.Event] {
	return For[types.Event](c, types.ResourceEvents, types.KindEvent)
}

// Invitations returns the invitations collection.
func (c *Client) Invitations() *Resources[types.Invitation] {
	return For[types.Invitation](c, types.ResourceInvitations, types.KindInvitation)
}

// Templates returns the invitation templates collection.
func (c *Client) Templates() *Resources[types.Template] {
	return For[types.Template](c, types.ResourceTemplates, types.KindTemplate)
}

// Reports returns the reports collection.
func (c *Client) Reports() *Resources[types.Report] {
	return For[types.Report](c, types.ResourceReports, types.KindReport)
}

// Ratings returns the ratings collection.
func (c *Client) Ratings() *Resources[types.Rating] {
	return For[types.Rating](c, types.ResourceRatings, types.KindRating)
}

// Name returns the collection name.
func (r *Resources[T]) Name() string { return r.name }

// List returns one page.
func (r *Resources[T]) List(ctx context.Context, opts ListOptions) (*Page[T], error) {
	resp, err := r.c.do(ctx, http.MethodGet, r.listPath(opts), nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.name, err)
	}

	raw, err := NormalizeList(resp.body, r.name)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.name, err)
	}
	page := &Page[T]{Items: make([]types.Resource[T], 0, len(raw))}
	for i, item := range raw {
		res, err := decodeItem[T](item)
		if err != nil {
			return nil, fmt.Errorf("decoding %s item %d: %w", r.name, i, err)
		}
		page.Items = append(page.Items, res)
	}
	page.TotalCount = len(page.Items)
	if total, ok := listTotal(resp.body); ok {
		page.TotalCount = total
	}
	return page, nil
}

// ListAll walks every page and returns all matching resources.
func (r *Resources[T]) ListAll(ctx context.Context, filters map[string]string) ([]types.Resource[T], error) {
	var out []types.Resource[T]
	opts := ListOptions{Limit: maxPageSize, Filters: filters}
	for {
		page, err := r.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		opts.Offset += len(page.Items)
		if len(page.Items) == 0 || opts.Offset >= page.TotalCount {
			return out, nil
		}
	}
}

// Get returns one resource by ID.
func (r *Resources[T]) Get(ctx context.Context, id string) (*types.Resource[T], error) {
	path, err := r.itemPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := r.c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s %q: %w", r.kind, id, err)
	}
	return decodeResource[T](resp, r.kind)
}

// Create creates a resource from spec.
func (r *Resources[T]) Create(ctx context.Context, spec T) (*types.Resource[T], error) {
	resp, err := r.c.do(ctx, http.MethodPost, apiPrefix+"/"+r.name, spec)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", r.kind, err)
	}
	return decodeResource[T](resp, r.kind)
}

// Update replaces the spec of resource id.
func (r *Resources[T]) Update(ctx context.Context, id string, spec T, opts ...RequestOption) (*types.Resource[T], error) {
	path, err := r.itemPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := r.c.do(ctx, http.MethodPut, path, spec, opts...)
	if err != nil {
		return nil, fmt.Errorf("updating %s %q: %w", r.kind, id, err)
	}
	return decodeResource[T](resp, r.kind)
}

// Patch merges the fields present in patch into resource id.
func (r *Resources[T]) Patch(ctx context.Context, id string, patch map[string]any, opts ...RequestOption) (*types.Resource[T], error) {
	path, err := r.itemPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := r.c.do(ctx, http.MethodPatch, path, patch, opts...)
	if err != nil {
		return nil, fmt.Errorf("patching %s %q: %w", r.kind, id, err)
	}
	return decodeResource[T](resp, r.kind)
}

// Delete removes resource id.
func (r *Resources[T]) Delete(ctx context.Context, id string, opts ...RequestOption) error {
	path, err := r.itemPath(id)
	if err != nil {
		return err
	}
	if _, err := r.c.do(ctx, http.MethodDelete, path, nil, opts...); err != nil {
		return fmt.Errorf("deleting %s %q: %w", r.kind, id, err)
	}
	return nil
}

func (r *Resources[T]) itemPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%s id is required", strings.ToLower(r.kind))
	}
	return apiPrefix + "/" + r.name + "/" + url.PathEscape(id), nil
}

func (r *Resources[T]) listPath(opts ListOptions) string {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}
	for k, v := range opts.Filters {
		if v = strings.TrimSpace(v); v != "" {
			params.Set(k, v)
		}
	}

	path := apiPrefix + "/" + r.name
	if encoded := params.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}

func decodeResource[T any](resp *response, kind string) (*types.Resource[T], error) {
	var out types.Resource[T]
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, err)
	}
	if out.Metadata.ETag == "" {
		out.Metadata.ETag = resp.header.Get("ETag")
	}
	return &out, nil
}
