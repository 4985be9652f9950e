package repository

import (
	"context"

	"github.com/volgrid/gridsubmit/pkg/api"
)

// Account is a submitter identified by its authenticator secret.
type Account struct {
	ID            int64
	Name          string
	Authenticator string
	// LogicalEndTime is the account's running fair-share logical clock,
	// in unix seconds (fractional).
	LogicalEndTime float64
}

// SubmitGrant is the permission record consulted by the authorization gate.
type SubmitGrant struct {
	AccountID int64
	// SubmitAll grants submission to every app; otherwise per-app rows in
	// submit_grant_app apply.
	SubmitAll bool
	// MaxJobsInFlight bounds the account's non-terminal jobs across all
	// batches; 0 means unlimited.
	MaxJobsInFlight int
	// Apps the account may submit to when SubmitAll is false.
	AppIDs []int64
}

type App struct {
	ID   int64
	Name string
	// Default templates, JSON documents; empty when the app has none.
	InputTemplate  string
	OutputTemplate string
}

type Batch struct {
	ID              int64
	AccountID       int64
	AppID           int64
	Name            string
	State           api.BatchState
	CreateTime      int64
	ExpireTime      int64
	CompletionTime  int64
	NJobs           int
	FractionDone    float64
	NErrorJobs      int
	CreditEstimate  float64
	CreditCanonical float64
	LogicalEndTime  float64
	Description     string
}

type Job struct {
	ID             int64
	BatchID        int64
	Name           string
	CommandLine    string
	RscFpopsEst    float64
	RscFpopsBound  float64
	RscMemoryBound float64
	RscDiskBound   float64
	DelayBound     float64
	Priority       int64
	// FairSharePriority marks a job whose priority derives from the owning
	// account's logical clock; it is assigned inside the submit transaction,
	// where the clock advance is applied. Not a stored column.
	FairSharePriority bool
	// CanonicalInstanceID is 0 until the external validator designates a
	// canonical result.
	CanonicalInstanceID int64
	ErrorMask           int
	InputFiles          []JobInputFile
}

// Terminal reports whether the job can no longer change state: it has a
// canonical result or a recorded failure.
func (j *Job) Terminal() bool {
	return j.CanonicalInstanceID != 0 || j.ErrorMask != 0
}

// JobInputFile is one input attachment, serialized as JSON in the job row.
type JobInputFile struct {
	Mode        string  `json:"mode"`
	LogicalName string  `json:"logical_name,omitempty"`
	PhysName    string  `json:"phys_name,omitempty"`
	URL         string  `json:"url,omitempty"`
	Nbytes      float64 `json:"nbytes,omitempty"`
	MD5         string  `json:"md5,omitempty"`
}

// JobInstance is one scheduler-side instance (result) of a job.
type JobInstance struct {
	ID       int64
	JobID    int64
	Name     string
	State    api.InstanceState
	CPUTime  float64
	Outfiles []InstanceOutfile
}

// InstanceOutfile records one output file produced by an instance,
// serialized as JSON in the instance row.
type InstanceOutfile struct {
	PhysName string `json:"phys_name"`
	Nbytes   int64  `json:"nbytes"`
}

// FileRecord is the durable digest record of one stored file.
type FileRecord struct {
	PhysName   string
	MD5        string
	Nbytes     int64
	CreateTime int64
	// DeleteTime is the unix time after which the reaper may delete the
	// file; 0 means keep indefinitely.
	DeleteTime int64
}

type AccountRepository interface {
	Get(ctx context.Context, id int64) (*Account, error)
	GetByAuthenticator(ctx context.Context, authenticator string) (*Account, error)
	GetGrant(ctx context.Context, accountID int64) (*SubmitGrant, error)
}

type AppRepository interface {
	GetByName(ctx context.Context, name string) (*App, error)
	Get(ctx context.Context, id int64) (*App, error)
}

// FairShareCharge is the logical time a submission costs its owner. It is
// applied to the account row inside the submit transaction: the clock is
// advanced from the later of NowSec and its committed value, so charges from
// concurrent submissions stack rather than overwrite each other.
type FairShareCharge struct {
	// NowSec is the wall clock at submission, unix seconds.
	NowSec float64
	// Seconds is the requested compute divided by the project's aggregate
	// throughput.
	Seconds float64
}

type BatchRepository interface {
	Create(ctx context.Context, batch *Batch) (int64, error)
	Get(ctx context.Context, id int64) (*Batch, error)
	GetByName(ctx context.Context, accountID int64, name string) (*Batch, error)
	ListByAccount(ctx context.Context, accountID int64) ([]*Batch, error)
	Update(ctx context.Context, id int64, update BatchUpdate) error

	// AttachJobs adds jobs to the batch in a single transaction: the batch
	// row is locked, its state checked against INIT, the fair-share charge
	// (when non-nil) applied atomically to the owning account's logical
	// clock, jobs and their initial instances inserted, batch counters and
	// priority updated and the state moved to IN_PROGRESS, then enqueue is
	// invoked with the jobs as they will be committed. Any failure,
	// including from enqueue, rolls the whole transaction back so the batch
	// is never observed IN_PROGRESS with a partial job set.
	AttachJobs(ctx context.Context, batchID int64, jobs []*Job, charge *FairShareCharge, enqueue func(jobs []*Job) error) error

	// CountInFlightJobs counts non-terminal jobs across all of the
	// account's batches, for quota enforcement.
	CountInFlightJobs(ctx context.Context, accountID int64) (int, error)
}

type JobRepository interface {
	Get(ctx context.Context, id int64) (*Job, error)
	GetByName(ctx context.Context, name string) (*Job, error)
	ListByBatch(ctx context.Context, batchID int64) ([]*Job, error)
	GetInstance(ctx context.Context, id int64) (*JobInstance, error)
	GetInstanceByName(ctx context.Context, name string) (*JobInstance, error)
	ListInstances(ctx context.Context, jobID int64) ([]*JobInstance, error)
	BatchCPUTime(ctx context.Context, batchID int64) (float64, error)

	// Abort moves the given jobs' non-terminal instances to ABORTED and
	// records the cancellation in the jobs' error masks, making them
	// terminal. Instances already terminal are left exactly as recorded; a
	// completion racing with an abort keeps whichever terminal state was
	// written last.
	Abort(ctx context.Context, jobIDs []int64) error

	// MarkRetired flags every instance of the batch's jobs as ready for
	// assimilation and cleanup by the external scheduler.
	MarkRetired(ctx context.Context, batchID int64) error
}

type FileRepository interface {
	Get(ctx context.Context, physName string) (*FileRecord, error)
	// Upsert inserts the record or, when it exists, raises DeleteTime to
	// the later of the stored and given values. Deletion times are only
	// ever extended here.
	Upsert(ctx context.Context, record *FileRecord) error
	// Associate records that the batch depends on the file.
	Associate(ctx context.Context, batchID int64, physName string) error
	// Present reports which of the given physical names have records.
	Present(ctx context.Context, physNames []string) (map[string]bool, error)
}
