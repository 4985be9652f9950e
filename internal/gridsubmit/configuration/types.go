package configuration

import "time"

type SubmitServerConfig struct {
	// Port the RPC endpoints listen on.
	HttpPort    uint16
	MetricsPort uint16

	Postgres PostgresConfig

	FileStore FileStoreConfig

	// Directory holding per-app template files, named <app>_in / <app>_out.
	TemplateDir string

	Enqueue EnqueueConfig

	Scheduling SchedulingConfig
}

type PostgresConfig struct {
	// Keys and values of the libpq connection string, e.g. host, port,
	// user, password, dbname, sslmode.
	Connection map[string]string
}

type FileStoreConfig struct {
	// Root of the staged input file hierarchy.
	StageDir string
	// Root of the job output file hierarchy, written by the external
	// scheduler.
	OutputDir string
	// Fan-out factor bounding directory sizes; files are sharded into
	// Fanout subdirectories by a hash of their physical name.
	Fanout int
	// Root of the per-account sandbox directories from which sandbox-mode
	// input files are staged. Empty disables sandbox inputs.
	SandboxDir string
}

type EnqueueConfig struct {
	// Command invoked once per submitted batch, fed one line per job on
	// stdin.
	Command string
	Args    []string
	// Bound on the command's execution time; a hung enqueuer fails the
	// submission rather than the service.
	Timeout time.Duration
}

type SchedulingConfig struct {
	// Estimated aggregate throughput of the project in FLOPS, used both
	// for batch duration estimates and for advancing the fair-share
	// logical clock.
	TotalFlopsRate float64
	// Default per-job compute estimate when neither the job nor the batch
	// supplies one. Zero means estimates are mandatory.
	DefaultFpopsEst float64
}
