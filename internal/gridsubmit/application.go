// Package gridsubmit wires the submit service together: database, file
// stores, enqueuer and the HTTP surface.
package gridsubmit

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/volgrid/gridsubmit/internal/common"
	"github.com/volgrid/gridsubmit/internal/common/util"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/configuration"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/enqueue"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/filestore"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/metrics"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/scheduling"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/server"
)

// StartUp brings up the submit service and returns a function that shuts it
// down gracefully.
func StartUp(config configuration.SubmitServerConfig) (func(), error) {
	db, err := sql.Open("postgres", ConnectionString(config.Postgres.Connection))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to reach database")
	}

	store, err := filestore.NewStore(config.FileStore.StageDir, config.FileStore.Fanout)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to open stage directory")
	}
	outputs, err := filestore.NewStore(config.FileStore.OutputDir, config.FileStore.Fanout)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to open output directory")
	}

	goquDb := repository.NewDatabase(db)
	submitServer := server.NewSubmitServer(
		repository.NewSQLAccountRepository(goquDb),
		repository.NewSQLAppRepository(goquDb),
		repository.NewSQLBatchRepository(goquDb),
		repository.NewSQLJobRepository(goquDb),
		repository.NewSQLFileRepository(goquDb),
		store,
		outputs,
		&enqueue.CommandEnqueuer{
			Command: config.Enqueue.Command,
			Args:    config.Enqueue.Args,
			Timeout: config.Enqueue.Timeout,
		},
		&scheduling.Estimator{
			TotalFlopsRate:  config.Scheduling.TotalFlopsRate,
			DefaultFpopsEst: config.Scheduling.DefaultFpopsEst,
		},
		metrics.NewMetrics(metrics.MetricsPrefix),
		&util.DefaultClock{},
		config.TemplateDir,
		config.FileStore.SandboxDir,
	)

	shutdownHttp := common.ServeHttp(config.HttpPort, submitServer.Routes())
	return func() {
		shutdownHttp()
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("failed to close database connection")
		}
	}, nil
}

// Migrate creates the database schema. Invoked from the command line rather
// than on every startup so multiple replicas do not race on DDL.
func Migrate(ctx context.Context, config configuration.SubmitServerConfig) error {
	db, err := sql.Open("postgres", ConnectionString(config.Postgres.Connection))
	if err != nil {
		return errors.Wrap(err, "failed to open database connection")
	}
	defer db.Close()
	return repository.CreateTables(ctx, db)
}

// ConnectionString renders libpq key=value pairs in stable order.
func ConnectionString(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, values[key]))
	}
	return strings.Join(pairs, " ")
}
