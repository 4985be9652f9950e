package repository

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
)

type fileRow struct {
	PhysName   string `db:"phys_name"`
	MD5        string `db:"md5"`
	Nbytes     int64  `db:"nbytes"`
	CreateTime int64  `db:"create_time"`
	DeleteTime int64  `db:"delete_time"`
}

func (r *SQLFileRepository) Get(ctx context.Context, physName string) (*FileRecord, error) {
	var row fileRow
	found, err := r.db.From(fileTable).
		Where(file_physName.Eq(physName)).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !found {
		return nil, &rpcerrors.ErrNotFound{Type: "file", Value: physName}
	}
	return &FileRecord{
		PhysName:   row.PhysName,
		MD5:        row.MD5,
		Nbytes:     row.Nbytes,
		CreateTime: row.CreateTime,
		DeleteTime: row.DeleteTime,
	}, nil
}

// Upsert inserts the digest record, or raises its delete time when the file
// is re-referenced. GREATEST keeps the later of the stored and requested
// times, so a deletion horizon is never pulled in.
func (r *SQLFileRepository) Upsert(ctx context.Context, record *FileRecord) error {
	_, err := r.db.Insert(fileTable).
		Rows(goqu.Record{
			"phys_name":   record.PhysName,
			"md5":         record.MD5,
			"nbytes":      record.Nbytes,
			"create_time": record.CreateTime,
			"delete_time": record.DeleteTime,
		}).
		OnConflict(goqu.DoUpdate("phys_name", goqu.Record{
			"delete_time": goqu.L("GREATEST(file_record.delete_time, EXCLUDED.delete_time)"),
		})).
		Executor().
		ExecContext(ctx)
	return errors.WithStack(err)
}

func (r *SQLFileRepository) Associate(ctx context.Context, batchID int64, physName string) error {
	_, err := r.db.Insert(assocTable).
		Rows(goqu.Record{
			"batch_id":  batchID,
			"phys_name": physName,
		}).
		OnConflict(goqu.DoNothing()).
		Executor().
		ExecContext(ctx)
	return errors.WithStack(err)
}

func (r *SQLFileRepository) Present(ctx context.Context, physNames []string) (map[string]bool, error) {
	present := make(map[string]bool, len(physNames))
	if len(physNames) == 0 {
		return present, nil
	}
	var names []string
	err := r.db.From(fileTable).
		Select(file_physName).
		Where(file_physName.In(physNames)).
		ScanValsContext(ctx, &names)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, name := range names {
		present[name] = true
	}
	return present, nil
}
