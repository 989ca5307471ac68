package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/internal/status"
	"queue-system/models"
)

// Directory resolves service and counter reference data. Both collections
// are owned by external collaborators (admin configuration and staff
// assignment); the core only reads them.
type Directory interface {
	GetService(ctx context.Context, id string) (*models.Service, error)
	GetCounter(ctx context.Context, id string) (*models.Counter, error)
	ListServices(ctx context.Context) ([]models.Service, error)
}

type RecordDirectory struct {
	app core.App
}

func NewRecordDirectory(app core.App) *RecordDirectory {
	return &RecordDirectory{app: app}
}

func (d *RecordDirectory) GetService(ctx context.Context, id string) (*models.Service, error) {
	service := models.Service{}
	err := d.app.DB().
		Select("id", "name", "code", "avg_handle_min", "active").
		From("services").
		Where(dbx.HashExp{"id": id}).
		One(&service)
	if err != nil {
		return nil, fmt.Errorf("%w: service %s", status.ErrNotFound, id)
	}
	return &service, nil
}

func (d *RecordDirectory) GetCounter(ctx context.Context, id string) (*models.Counter, error) {
	counter := models.Counter{}
	err := d.app.DB().
		Select("id", "service", "name", "active").
		From("counters").
		Where(dbx.HashExp{"id": id}).
		One(&counter)
	if err != nil {
		return nil, fmt.Errorf("%w: counter %s", status.ErrNotFound, id)
	}
	return &counter, nil
}

func (d *RecordDirectory) ListServices(ctx context.Context) ([]models.Service, error) {
	services := []models.Service{}
	err := d.app.DB().
		Select("id", "name", "code", "avg_handle_min", "active").
		From("services").
		Where(dbx.HashExp{"active": true}).
		OrderBy("code ASC").
		All(&services)
	if err != nil {
		return nil, err
	}
	return services, nil
}
