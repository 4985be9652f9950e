// Package api defines the wire types of the batch submission RPC protocol.
package api

// BatchState is the lifecycle state of a batch. States are ordered; a batch
// only ever moves to a higher-ranked state.
type BatchState string

const (
	// BatchInit: created, jobs not yet attached. The only state that
	// accepts job submission.
	BatchInit BatchState = "INIT"
	// BatchInProgress: jobs attached and handed to the scheduler.
	BatchInProgress BatchState = "IN_PROGRESS"
	// BatchComplete: every job reached a terminal state.
	BatchComplete BatchState = "COMPLETE"
	// BatchAborted: explicitly cancelled by the owner.
	BatchAborted BatchState = "ABORTED"
	// BatchRetired: output retrieved, files released for cleanup.
	BatchRetired BatchState = "RETIRED"
)

// Rank orders batch states along the lifecycle. Unknown states rank lowest.
func (s BatchState) Rank() int {
	switch s {
	case BatchInit:
		return 1
	case BatchInProgress:
		return 2
	case BatchComplete:
		return 3
	case BatchAborted:
		return 4
	case BatchRetired:
		return 5
	}
	return 0
}

// CanTransitionTo reports whether the state machine permits moving to next.
// Transitions are monotonic: IN_PROGRESS and COMPLETE may be aborted, and
// any state may be retired.
func (s BatchState) CanTransitionTo(next BatchState) bool {
	switch next {
	case BatchInProgress:
		return s == BatchInit
	case BatchComplete:
		return s == BatchInProgress
	case BatchAborted:
		return s == BatchInProgress || s == BatchComplete
	case BatchRetired:
		return s != BatchRetired
	}
	return false
}

// InstanceState is the scheduler-side state of one job instance.
type InstanceState string

const (
	InstanceUnsent      InstanceState = "UNSENT"
	InstanceInProgress  InstanceState = "IN_PROGRESS"
	InstanceOverSuccess InstanceState = "OVER_SUCCESS"
	InstanceOverError   InstanceState = "OVER_ERROR"
	InstanceAborted     InstanceState = "ABORTED"
)

// Input file modes.
const (
	// FileModeRemote: the file lives on an external server, referenced by
	// url with a declared size and digest.
	FileModeRemote = "remote"
	// FileModeLocal: the file is on the submit server's filesystem and is
	// staged at submit time.
	FileModeLocal = "local"
	// FileModeLocalStaged: the file was staged earlier and is referenced by
	// its physical name.
	FileModeLocalStaged = "local_staged"
	// FileModeSandbox: the file was placed in the submitter's sandbox
	// directory beforehand and is referenced by its sandbox-relative name.
	FileModeSandbox = "sandbox"
	// FileModeInline: the content is carried in the request itself.
	FileModeInline = "inline"
)
