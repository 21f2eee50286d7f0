package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sakif/marathon-client/internal/apiclient"
	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
)

const (
	marathonsPath = "/api/marathons"
	featuredPath  = "/api/marathons/public/featured"
)

// MarathonRepository talks to the /api/marathons endpoints.
type MarathonRepository struct {
	api Caller
}

var _ repository.MarathonRepository = (*MarathonRepository)(nil)

func NewMarathonRepository(api Caller) *MarathonRepository {
	return &MarathonRepository{api: api}
}

func (r *MarathonRepository) Create(ctx context.Context, in model.MarathonInput) (model.WriteResult, error) {
	var res model.WriteResult
	err := r.api.Do(ctx, marathonsPath, writeOptions(http.MethodPost, in), &res)
	if err != nil {
		return model.WriteResult{}, fmt.Errorf("creating marathon: %w", err)
	}
	return res, nil
}

// List fetches the collection. Sort and location are sent only when set.
func (r *MarathonRepository) List(ctx context.Context, q repository.MarathonQuery) ([]model.Marathon, error) {
	params := url.Values{}
	if q.Sort != "" {
		params.Set("sort", string(q.Sort))
	}
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	endpoint := marathonsPath
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var out []model.Marathon
	if err := r.api.Do(ctx, endpoint, readOptions(), &out); err != nil {
		return nil, fmt.Errorf("listing marathons: %w", err)
	}
	return nonNil(out), nil
}

func (r *MarathonRepository) ListFeatured(ctx context.Context) ([]model.Marathon, error) {
	var out []model.Marathon
	if err := r.api.Do(ctx, featuredPath, readOptions(), &out); err != nil {
		return nil, fmt.Errorf("listing featured marathons: %w", err)
	}
	return nonNil(out), nil
}

// GetByID fetches one marathon. The endpoint shares the collection prefix,
// so an unreadable response arrives as an empty collection; that and an
// object without an id both mean the marathon could not be found.
func (r *MarathonRepository) GetByID(ctx context.Context, id string) (*model.Marathon, error) {
	var raw json.RawMessage
	if err := r.api.Do(ctx, marathonsPath+"/"+url.PathEscape(id), readOptions(), &raw); err != nil {
		return nil, fmt.Errorf("getting marathon %s: %w", id, err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		return nil, apperror.NotFound("marathon", id)
	}

	var m model.Marathon
	if err := json.Unmarshal(raw, &m); err != nil {
		e := apperror.InvalidResponse(fmt.Sprintf("unexpected marathon payload for %s", id))
		e.Cause = err
		return nil, e
	}
	if m.ID == "" {
		return nil, apperror.NotFound("marathon", id)
	}
	return &m, nil
}

func (r *MarathonRepository) Update(ctx context.Context, id string, patch model.MarathonPatch) (model.WriteResult, error) {
	var res model.WriteResult
	err := r.api.Do(ctx, marathonsPath+"/"+url.PathEscape(id), writeOptions(http.MethodPatch, patch), &res)
	if err != nil {
		return model.WriteResult{}, fmt.Errorf("updating marathon %s: %w", id, err)
	}
	return res, nil
}

func (r *MarathonRepository) Delete(ctx context.Context, id string) (model.WriteResult, error) {
	var res model.WriteResult
	err := r.api.Do(ctx, marathonsPath+"/"+url.PathEscape(id), writeOptions(http.MethodDelete, nil), &res)
	if err != nil {
		return model.WriteResult{}, fmt.Errorf("deleting marathon %s: %w", id, err)
	}
	return res, nil
}

func readOptions() apiclient.CallOptions {
	return apiclient.CallOptions{Method: http.MethodGet}
}

func writeOptions(method string, body any) apiclient.CallOptions {
	return apiclient.CallOptions{Method: method, Body: body}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
