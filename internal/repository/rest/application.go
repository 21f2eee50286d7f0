package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/marathon-client/internal/model"
	"github.com/sakif/marathon-client/internal/repository"
)

const (
	applyPath          = "/api/apply"
	myApplicationsPath = "/api/apply/my"
)

// ApplicationRepository talks to the /api/apply endpoints.
type ApplicationRepository struct {
	api Caller
}

var _ repository.ApplicationRepository = (*ApplicationRepository)(nil)

func NewApplicationRepository(api Caller) *ApplicationRepository {
	return &ApplicationRepository{api: api}
}

func (r *ApplicationRepository) Create(ctx context.Context, req model.ApplicationRequest) (model.WriteResult, error) {
	var res model.WriteResult
	if err := r.api.Do(ctx, applyPath, writeOptions(http.MethodPost, req), &res); err != nil {
		return model.WriteResult{}, fmt.Errorf("submitting application: %w", err)
	}
	return res, nil
}

// ListMine returns the session user's applications, narrowed server-side by
// search when it is not blank.
func (r *ApplicationRepository) ListMine(ctx context.Context, search string) ([]model.Application, error) {
	endpoint := myApplicationsPath
	if s := strings.TrimSpace(search); s != "" {
		endpoint += "?search=" + url.QueryEscape(s)
	}

	var out []model.Application
	if err := r.api.Do(ctx, endpoint, readOptions(), &out); err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	return nonNil(out), nil
}

func (r *ApplicationRepository) Update(ctx context.Context, id string, patch model.ApplicationPatch) (model.WriteResult, error) {
	var res model.WriteResult
	err := r.api.Do(ctx, applyPath+"/"+url.PathEscape(id), writeOptions(http.MethodPatch, patch), &res)
	if err != nil {
		return model.WriteResult{}, fmt.Errorf("updating application %s: %w", id, err)
	}
	return res, nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, id string) (model.WriteResult, error) {
	var res model.WriteResult
	err := r.api.Do(ctx, applyPath+"/"+url.PathEscape(id), writeOptions(http.MethodDelete, nil), &res)
	if err != nil {
		return model.WriteResult{}, fmt.Errorf("deleting application %s: %w", id, err)
	}
	return res, nil
}
