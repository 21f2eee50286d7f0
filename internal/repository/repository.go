// Package repository declares the data-access boundaries the stores depend
// on. The backend owns every entity; implementations in rest talk to it over
// HTTP, the sqlite implementation holds the one piece of durable client
// state, the persisted session slot.
package repository

import (
	"context"

	"github.com/sakif/marathon-client/internal/model"
)

// MarathonQuery holds the listing parameters forwarded to the backend.
type MarathonQuery struct {
	Sort     model.SortOrder
	Location string
}

type MarathonRepository interface {
	Create(ctx context.Context, in model.MarathonInput) (model.WriteResult, error)
	List(ctx context.Context, q MarathonQuery) ([]model.Marathon, error)
	ListFeatured(ctx context.Context) ([]model.Marathon, error)
	GetByID(ctx context.Context, id string) (*model.Marathon, error)
	Update(ctx context.Context, id string, patch model.MarathonPatch) (model.WriteResult, error)
	Delete(ctx context.Context, id string) (model.WriteResult, error)
}

type ApplicationRepository interface {
	Create(ctx context.Context, req model.ApplicationRequest) (model.WriteResult, error)
	ListMine(ctx context.Context, search string) ([]model.Application, error)
	Update(ctx context.Context, id string, patch model.ApplicationPatch) (model.WriteResult, error)
	Delete(ctx context.Context, id string) (model.WriteResult, error)
}

// AuthRepository manages the backend's cookie session.
type AuthRepository interface {
	CreateSession(ctx context.Context, email string) error
	EndSession(ctx context.Context) error
}

type StatsRepository interface {
	Dashboard(ctx context.Context) (model.DashboardStats, error)
}

// SessionSlot is durable storage for the serialized session identity. Load
// returns the raw stored value so that corrupt data can be detected by the
// caller; ok is false when the slot is empty.
type SessionSlot interface {
	Load(ctx context.Context) (value string, ok bool, err error)
	Save(ctx context.Context, value string) error
	Clear(ctx context.Context) error
}
