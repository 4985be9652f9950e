package api

// Command names accepted by the submit RPC endpoint.
const (
	CmdEstimateBatch = "estimate_batch"
	CmdCreateBatch   = "create_batch"
	CmdSubmitBatch   = "submit_batch"
	CmdQueryBatches  = "query_batches"
	CmdQueryBatch    = "query_batch"
	CmdQueryJob      = "query_job"
	CmdAbortBatch    = "abort_batch"
	CmdAbortJobs     = "abort_jobs"
	CmdRetireBatch   = "retire_batch"
	CmdSetExpireTime = "set_expire_time"
	CmdGetTemplates  = "get_templates"
	CmdQueryFiles    = "query_files"
	CmdUploadFiles   = "upload_files"
)

// Request is the envelope for every submit RPC call. Which fields are
// meaningful depends on Command; validation happens once at the protocol
// boundary.
type Request struct {
	Command       string `json:"command"`
	Authenticator string `json:"authenticator"`

	Batch *BatchDescription `json:"batch,omitempty"`

	AppName   string `json:"app_name,omitempty"`
	BatchID   int64  `json:"batch_id,omitempty"`
	BatchName string `json:"batch_name,omitempty"`
	JobID     int64  `json:"job_id,omitempty"`
	JobName   string `json:"job_name,omitempty"`

	JobNames []string `json:"job_names,omitempty"`

	ExpireTime int64 `json:"expire_time,omitempty"`

	GetCPUTime    bool `json:"get_cpu_time,omitempty"`
	GetJobDetails bool `json:"get_job_details,omitempty"`

	// File operations (job_file endpoint).
	PhysNames  []string `json:"phys_name,omitempty"`
	DeleteTime int64    `json:"delete_time,omitempty"`
}

// BatchDescription describes a batch and its jobs for estimate_batch and
// submit_batch.
type BatchDescription struct {
	AppName       string `json:"app_name"`
	BatchName     string `json:"batch_name,omitempty"`
	BatchID       int64  `json:"batch_id,omitempty"`
	AppVersionNum int    `json:"app_version_num,omitempty"`
	ExpireTime    int64  `json:"expire_time,omitempty"`

	// Priority is an explicit caller-supplied priority. When absent the
	// fair-share logical end time is used instead.
	Priority           *int64 `json:"priority,omitempty"`
	AllocationPriority bool   `json:"allocation_priority,omitempty"`

	JobParams JobParams `json:"job_params,omitempty"`

	InputTemplateFilename  string       `json:"input_template_filename,omitempty"`
	OutputTemplateFilename string       `json:"output_template_filename,omitempty"`
	InputTemplate          *JobTemplate `json:"input_template,omitempty"`
	OutputTemplate         *JobTemplate `json:"output_template,omitempty"`

	Jobs []JobDescription `json:"job"`
}

// JobParams holds per-batch defaults for job resource bounds.
type JobParams struct {
	RscDiskBound   float64 `json:"rsc_disk_bound,omitempty"`
	RscFpopsEst    float64 `json:"rsc_fpops_est,omitempty"`
	RscFpopsBound  float64 `json:"rsc_fpops_bound,omitempty"`
	RscMemoryBound float64 `json:"rsc_memory_bound,omitempty"`
	DelayBound     float64 `json:"delay_bound,omitempty"`
}

type JobDescription struct {
	Name        string  `json:"name,omitempty"`
	CommandLine string  `json:"command_line,omitempty"`
	RscFpopsEst float64 `json:"rsc_fpops_est,omitempty"`
	Priority    *int64  `json:"priority,omitempty"`

	TargetUser int64 `json:"target_user,omitempty"`
	TargetTeam int64 `json:"target_team,omitempty"`
	TargetHost int64 `json:"target_host,omitempty"`

	InputFiles []InputFile `json:"input_file,omitempty"`

	InputTemplate  *JobTemplate `json:"input_template,omitempty"`
	OutputTemplate *JobTemplate `json:"output_template,omitempty"`
}

// InputFile is one input attachment of a job. Local and inline files are
// staged into the content-addressed store at submit time; remote files are
// passed through by reference.
type InputFile struct {
	Mode string `json:"mode"`

	// Source is a server-local path (mode local), a previously staged
	// physical name (mode local_staged), or the literal content (mode inline).
	Source string `json:"source,omitempty"`

	// Remote files carry their own location and digest.
	URL    string  `json:"url,omitempty"`
	Nbytes float64 `json:"nbytes,omitempty"`
	MD5    string  `json:"md5,omitempty"`
}

// JobTemplate describes the expected input or output files of a job, in order.
type JobTemplate struct {
	Files []TemplateFile `json:"files"`
}

type TemplateFile struct {
	LogicalName string `json:"logical_name"`
	Optional    bool   `json:"optional,omitempty"`
}
