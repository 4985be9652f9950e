package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS account (
		id bigserial PRIMARY KEY,
		name varchar(255),
		authenticator varchar(255) NOT NULL UNIQUE,
		logical_end_time double precision NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS submit_grant (
		account_id bigint PRIMARY KEY REFERENCES account (id),
		submit_all boolean NOT NULL DEFAULT false,
		max_jobs_in_flight int NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS submit_grant_app (
		account_id bigint NOT NULL REFERENCES account (id),
		app_id bigint NOT NULL,
		PRIMARY KEY (account_id, app_id)
	)`,
	`CREATE TABLE IF NOT EXISTS app (
		id bigserial PRIMARY KEY,
		name varchar(255) NOT NULL UNIQUE,
		input_template text,
		output_template text
	)`,
	`CREATE TABLE IF NOT EXISTS batch (
		id bigserial PRIMARY KEY,
		account_id bigint NOT NULL REFERENCES account (id),
		app_id bigint NOT NULL REFERENCES app (id),
		name varchar(255),
		state varchar(32) NOT NULL,
		create_time bigint NOT NULL,
		expire_time bigint,
		completion_time bigint,
		njobs int NOT NULL DEFAULT 0,
		fraction_done double precision NOT NULL DEFAULT 0,
		nerror_jobs int NOT NULL DEFAULT 0,
		credit_estimate double precision NOT NULL DEFAULT 0,
		credit_canonical double precision NOT NULL DEFAULT 0,
		logical_end_time double precision NOT NULL DEFAULT 0,
		description text
	)`,
	`CREATE INDEX IF NOT EXISTS batch_account_idx ON batch (account_id)`,
	`CREATE TABLE IF NOT EXISTS job (
		id bigserial PRIMARY KEY,
		batch_id bigint NOT NULL REFERENCES batch (id),
		name varchar(255) NOT NULL UNIQUE,
		command_line text,
		rsc_fpops_est double precision NOT NULL DEFAULT 0,
		rsc_fpops_bound double precision NOT NULL DEFAULT 0,
		rsc_memory_bound double precision NOT NULL DEFAULT 0,
		rsc_disk_bound double precision NOT NULL DEFAULT 0,
		delay_bound double precision NOT NULL DEFAULT 0,
		priority bigint NOT NULL DEFAULT 0,
		canonical_instance_id bigint,
		error_mask int NOT NULL DEFAULT 0,
		input_files text
	)`,
	`CREATE INDEX IF NOT EXISTS job_batch_idx ON job (batch_id)`,
	`CREATE TABLE IF NOT EXISTS job_instance (
		id bigserial PRIMARY KEY,
		job_id bigint NOT NULL REFERENCES job (id),
		name varchar(255) NOT NULL,
		state varchar(32) NOT NULL,
		cpu_time double precision NOT NULL DEFAULT 0,
		outfiles text,
		retired boolean NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS job_instance_job_idx ON job_instance (job_id)`,
	`CREATE TABLE IF NOT EXISTS file_record (
		phys_name varchar(255) PRIMARY KEY,
		md5 varchar(64) NOT NULL,
		nbytes bigint NOT NULL DEFAULT 0,
		create_time bigint NOT NULL,
		delete_time bigint NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS batch_file (
		batch_id bigint NOT NULL REFERENCES batch (id),
		phys_name varchar(255) NOT NULL REFERENCES file_record (phys_name),
		PRIMARY KEY (batch_id, phys_name)
	)`,
}

// CreateTables applies the schema. Statements are idempotent so this is safe
// to run at startup.
func CreateTables(ctx context.Context, db *sql.DB) error {
	for _, statement := range schema {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return errors.Wrapf(err, "applying schema statement %q", statement[:40])
		}
	}
	return nil
}
