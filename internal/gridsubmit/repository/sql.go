package repository

import (
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

// NewDatabase wraps a database/sql handle in the goqu postgres dialect.
func NewDatabase(db *sql.DB) *goqu.Database {
	return goqu.New("postgres", db)
}

type SQLAccountRepository struct {
	db *goqu.Database
}

func NewSQLAccountRepository(db *goqu.Database) *SQLAccountRepository {
	return &SQLAccountRepository{db: db}
}

type SQLAppRepository struct {
	db *goqu.Database
}

func NewSQLAppRepository(db *goqu.Database) *SQLAppRepository {
	return &SQLAppRepository{db: db}
}

type SQLBatchRepository struct {
	db *goqu.Database
}

func NewSQLBatchRepository(db *goqu.Database) *SQLBatchRepository {
	return &SQLBatchRepository{db: db}
}

type SQLJobRepository struct {
	db *goqu.Database
}

func NewSQLJobRepository(db *goqu.Database) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

type SQLFileRepository struct {
	db *goqu.Database
}

func NewSQLFileRepository(db *goqu.Database) *SQLFileRepository {
	return &SQLFileRepository{db: db}
}

var (
	// Tables
	accountTable  = goqu.T("account")
	grantTable    = goqu.T("submit_grant")
	grantAppTable = goqu.T("submit_grant_app")
	appTable      = goqu.T("app")
	batchTable    = goqu.T("batch")
	jobTable      = goqu.T("job")
	instanceTable = goqu.T("job_instance")
	fileTable     = goqu.T("file_record")
	assocTable    = goqu.T("batch_file")

	// Columns: batch
	batch_id        = goqu.I("batch.id")
	batch_accountId = goqu.I("batch.account_id")
	batch_name      = goqu.I("batch.name")

	// Columns: job
	job_id          = goqu.I("job.id")
	job_batchId     = goqu.I("job.batch_id")
	job_name        = goqu.I("job.name")
	job_canonicalId = goqu.I("job.canonical_instance_id")
	job_errorMask   = goqu.I("job.error_mask")

	// Columns: job_instance
	instance_id    = goqu.I("job_instance.id")
	instance_jobId = goqu.I("job_instance.job_id")
	instance_name  = goqu.I("job_instance.name")
	instance_state = goqu.I("job_instance.state")

	// Columns: file_record / batch_file
	file_physName  = goqu.I("file_record.phys_name")
	assoc_batchId  = goqu.I("batch_file.batch_id")
	assoc_physName = goqu.I("batch_file.phys_name")

	// Columns: account / grants
	account_id            = goqu.I("account.id")
	account_authenticator = goqu.I("account.authenticator")
	grant_accountId       = goqu.I("submit_grant.account_id")
	grantApp_accountId    = goqu.I("submit_grant_app.account_id")

	// Columns: app
	app_id   = goqu.I("app.id")
	app_name = goqu.I("app.name")
)

// Instance states the external scheduler still considers live; used by the
// quota count and the abort path.
var nonTerminalInstanceStates = []string{"UNSENT", "IN_PROGRESS"}
