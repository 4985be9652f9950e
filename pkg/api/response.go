package api

// Numeric error codes returned in the response envelope. 0 is success;
// all failure kinds are negative.
const (
	CodeSuccess               = 0
	CodeAuthError             = -1
	CodeAuthorizationError    = -2
	CodeQuotaExceeded         = -3
	CodeNotFound              = -4
	CodeTemplateMismatch      = -5
	CodeImmutabilityViolation = -6
	CodeStagingError          = -7
	CodeEnqueueFailure        = -8
	CodeBadState              = -9
	CodeMalformedRequest      = -10
	CodeMissingEstimate       = -11
	CodeInternalError         = -100
)

// Error is the structured error document returned on failure. Success and
// failure are mutually exclusive: a response carries either an Error or a
// payload, never both.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope for every submit RPC reply.
type Response struct {
	Error *Error `json:"error,omitempty"`

	Success bool `json:"success,omitempty"`

	// estimate_batch
	Seconds float64 `json:"seconds,omitempty"`

	// create_batch / submit_batch
	BatchID int64 `json:"batch_id,omitempty"`

	// query_batches / query_batch
	Batches []*BatchInfo `json:"batches,omitempty"`
	Batch   *BatchInfo   `json:"batch,omitempty"`
	Jobs    []*JobInfo   `json:"jobs,omitempty"`

	// query_job
	Instances []*InstanceInfo `json:"instances,omitempty"`

	// get_templates
	InputTemplate  *JobTemplate `json:"input_template,omitempty"`
	OutputTemplate *JobTemplate `json:"output_template,omitempty"`

	// query_files: indices into the request's phys_name list for files not
	// present on the server.
	AbsentFiles []int `json:"absent_files,omitempty"`
}

type BatchInfo struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name,omitempty"`
	AppName         string     `json:"app_name,omitempty"`
	State           BatchState `json:"state"`
	CreateTime      int64      `json:"create_time"`
	ExpireTime      int64      `json:"expire_time,omitempty"`
	CompletionTime  int64      `json:"completion_time,omitempty"`
	NJobs           int        `json:"njobs"`
	FractionDone    float64    `json:"fraction_done"`
	NErrorJobs      int        `json:"nerror_jobs"`
	CreditEstimate  float64    `json:"credit_estimate,omitempty"`
	CreditCanonical float64    `json:"credit_canonical,omitempty"`
	LogicalEndTime  float64    `json:"logical_end_time,omitempty"`
	TotalCPUTime    float64    `json:"total_cpu_time,omitempty"`
}

type JobInfo struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	CanonicalInstanceID int64  `json:"canonical_instance_id,omitempty"`
	ErrorMask           int    `json:"error_mask,omitempty"`
	// Status of every instance, newest first; only populated when
	// get_job_details is set.
	Status []string `json:"status,omitempty"`
}

type InstanceInfo struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	State    InstanceState `json:"state"`
	CPUTime  float64       `json:"cpu_time,omitempty"`
	Outfiles []OutfileInfo `json:"outfiles,omitempty"`
}

type OutfileInfo struct {
	Size int64 `json:"size"`
}
