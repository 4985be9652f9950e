package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
)

type appRow struct {
	Id             int64          `db:"id"`
	Name           string         `db:"name"`
	InputTemplate  sql.NullString `db:"input_template"`
	OutputTemplate sql.NullString `db:"output_template"`
}

func (row *appRow) toApp() *App {
	return &App{
		ID:             row.Id,
		Name:           row.Name,
		InputTemplate:  row.InputTemplate.String,
		OutputTemplate: row.OutputTemplate.String,
	}
}

func (r *SQLAppRepository) GetByName(ctx context.Context, name string) (*App, error) {
	return r.getApp(ctx, app_name.Eq(name), name)
}

func (r *SQLAppRepository) Get(ctx context.Context, id int64) (*App, error) {
	return r.getApp(ctx, app_id.Eq(id), fmt.Sprintf("%d", id))
}

func (r *SQLAppRepository) getApp(ctx context.Context, where goqu.Expression, key string) (*App, error) {
	var row appRow
	found, err := r.db.From(appTable).Where(where).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "app", Value: key}
	}
	return row.toApp(), nil
}
