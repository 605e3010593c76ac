package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/yungbote/coursegen/internal/apiclient"
)

type Contents struct {
	api API
}

func NewContents(api API) *Contents { return &Contents{api: api} }

func (c *Contents) ListUnit(ctx context.Context, unitID int64, q Query) (*Page[Content], error) {
	if unitID <= 0 {
		return nil, errors.New("unit id required")
	}
	v := q.values(url.Values{"unit_id": {id(unitID)}})
	var out Page[Content]
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Endpoint: "contents/unit?" + v.Encode()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Contents) ListPublicUnit(ctx context.Context, unitID int64, q Query) (*Page[Content], error) {
	v := q.values(nil)
	var out Page[Content]
	endpoint := "courses/public/units/" + id(unitID) + "/contents?" + v.Encode()
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Endpoint: endpoint}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Contents) Get(ctx context.Context, contentID int64) (*Content, error) {
	var out Content
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Endpoint: "courses/public/contents/" + id(contentID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Contents) Create(ctx context.Context, in ContentInput) (*Content, error) {
	if in.UnitID <= 0 {
		return nil, errors.New("unit id required")
	}
	var out Content
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPost, Endpoint: "contents", Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Contents) Update(ctx context.Context, contentID int64, in ContentInput) (*Content, error) {
	var out Content
	if err := c.api.Do(ctx, apiclient.Request{Method: http.MethodPut, Endpoint: "contents/" + id(contentID), Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Contents) Delete(ctx context.Context, contentID int64) error {
	return c.api.Do(ctx, apiclient.Request{Method: http.MethodDelete, Endpoint: "contents/" + id(contentID)}, nil)
}
