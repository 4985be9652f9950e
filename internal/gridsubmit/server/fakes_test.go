package server

import (
	"context"
	"fmt"
	"sort"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

// fakeState is an in-memory stand-in for the database, shared by the
// per-entity fake repositories.
type fakeState struct {
	accounts  map[int64]*repository.Account
	grants    map[int64]*repository.SubmitGrant
	apps      map[int64]*repository.App
	batches   map[int64]*repository.Batch
	jobs      map[int64]*repository.Job
	instances map[int64]*repository.JobInstance
	files     map[string]*repository.FileRecord
	assocs    map[string]bool
	retired   map[int64]bool
	nextID    int64
}

func newFakeState() *fakeState {
	return &fakeState{
		accounts:  map[int64]*repository.Account{},
		grants:    map[int64]*repository.SubmitGrant{},
		apps:      map[int64]*repository.App{},
		batches:   map[int64]*repository.Batch{},
		jobs:      map[int64]*repository.Job{},
		instances: map[int64]*repository.JobInstance{},
		files:     map[string]*repository.FileRecord{},
		assocs:    map[string]bool{},
		retired:   map[int64]bool{},
	}
}

func (s *fakeState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeState) addAccount(name string, authenticator string) *repository.Account {
	account := &repository.Account{ID: s.id(), Name: name, Authenticator: authenticator}
	s.accounts[account.ID] = account
	return account
}

func (s *fakeState) addApp(name string, inputTemplate string) *repository.App {
	app := &repository.App{ID: s.id(), Name: name, InputTemplate: inputTemplate}
	s.apps[app.ID] = app
	return app
}

type fakeAccounts struct{ s *fakeState }

func (r *fakeAccounts) Get(ctx context.Context, id int64) (*repository.Account, error) {
	if account, ok := r.s.accounts[id]; ok {
		return account, nil
	}
	return nil, &rpcerrors.ErrNotFound{Type: "account", Value: fmt.Sprintf("%d", id)}
}

func (r *fakeAccounts) GetByAuthenticator(ctx context.Context, authenticator string) (*repository.Account, error) {
	for _, account := range r.s.accounts {
		if account.Authenticator == authenticator {
			return account, nil
		}
	}
	return nil, &rpcerrors.ErrAuth{}
}

func (r *fakeAccounts) GetGrant(ctx context.Context, accountID int64) (*repository.SubmitGrant, error) {
	return r.s.grants[accountID], nil
}

type fakeApps struct{ s *fakeState }

func (r *fakeApps) Get(ctx context.Context, id int64) (*repository.App, error) {
	if app, ok := r.s.apps[id]; ok {
		return app, nil
	}
	return nil, &rpcerrors.ErrNotFound{Type: "app", Value: fmt.Sprintf("%d", id)}
}

func (r *fakeApps) GetByName(ctx context.Context, name string) (*repository.App, error) {
	for _, app := range r.s.apps {
		if app.Name == name {
			return app, nil
		}
	}
	return nil, &rpcerrors.ErrNotFound{Type: "app", Value: name}
}

type fakeBatches struct{ s *fakeState }

func (r *fakeBatches) Create(ctx context.Context, batch *repository.Batch) (int64, error) {
	stored := *batch
	stored.ID = r.s.id()
	r.s.batches[stored.ID] = &stored
	return stored.ID, nil
}

func (r *fakeBatches) Get(ctx context.Context, id int64) (*repository.Batch, error) {
	if batch, ok := r.s.batches[id]; ok {
		copied := *batch
		return &copied, nil
	}
	return nil, &rpcerrors.ErrNotFound{Type: "batch", Value: fmt.Sprintf("%d", id)}
}

func (r *fakeBatches) GetByName(ctx context.Context, accountID int64, name string) (*repository.Batch, error) {
	for _, batch := range r.s.batches {
		if batch.AccountID == accountID && batch.Name == name {
			copied := *batch
			return &copied, nil
		}
	}
	return nil, &rpcerrors.ErrNotFound{Type: "batch", Value: name}
}

func (r *fakeBatches) ListByAccount(ctx context.Context, accountID int64) ([]*repository.Batch, error) {
	batches := make([]*repository.Batch, 0)
	for _, batch := range r.s.batches {
		if batch.AccountID == accountID {
			copied := *batch
			batches = append(batches, &copied)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (r *fakeBatches) Update(ctx context.Context, id int64, update repository.BatchUpdate) error {
	batch, ok := r.s.batches[id]
	if !ok {
		return &rpcerrors.ErrNotFound{Type: "batch", Value: fmt.Sprintf("%d", id)}
	}
	if update.State != nil {
		batch.State = *update.State
	}
	if update.NJobs != nil {
		batch.NJobs = *update.NJobs
	}
	if update.FractionDone != nil {
		batch.FractionDone = *update.FractionDone
	}
	if update.NErrorJobs != nil {
		batch.NErrorJobs = *update.NErrorJobs
	}
	if update.CompletionTime != nil {
		batch.CompletionTime = *update.CompletionTime
	}
	if update.ExpireTime != nil {
		batch.ExpireTime = *update.ExpireTime
	}
	if update.LogicalEndTime != nil {
		batch.LogicalEndTime = *update.LogicalEndTime
	}
	return nil
}

func (r *fakeBatches) AttachJobs(
	ctx context.Context,
	batchID int64,
	jobs []*repository.Job,
	charge *repository.FairShareCharge,
	enqueue func(jobs []*repository.Job) error,
) error {
	batch, ok := r.s.batches[batchID]
	if !ok {
		return &rpcerrors.ErrNotFound{Type: "batch", Value: fmt.Sprintf("%d", batchID)}
	}
	if batch.State != api.BatchInit {
		return &rpcerrors.ErrBadState{BatchID: batchID, State: batch.State, Op: "adding jobs"}
	}

	// Charge the account clock from its stored value, as the transaction
	// does, before jobs pick up their fair-share priorities. The charge is
	// only persisted once enqueue has succeeded, mirroring the rollback.
	var logicalEnd *float64
	if charge != nil {
		account, ok := r.s.accounts[batch.AccountID]
		if !ok {
			return &rpcerrors.ErrNotFound{Type: "account", Value: fmt.Sprintf("%d", batch.AccountID)}
		}
		start := charge.NowSec
		if account.LogicalEndTime > start {
			start = account.LogicalEndTime
		}
		end := start + charge.Seconds
		logicalEnd = &end
		for _, job := range jobs {
			if job.FairSharePriority {
				job.Priority = int64(end)
			}
		}
	}

	for _, job := range jobs {
		job.ID = r.s.id()
		job.BatchID = batchID
	}
	if err := enqueue(jobs); err != nil {
		return err
	}
	if logicalEnd != nil {
		r.s.accounts[batch.AccountID].LogicalEndTime = *logicalEnd
	}
	for _, job := range jobs {
		stored := *job
		r.s.jobs[stored.ID] = &stored
		instance := &repository.JobInstance{
			ID:    r.s.id(),
			JobID: stored.ID,
			Name:  stored.Name + "_0",
			State: api.InstanceUnsent,
		}
		r.s.instances[instance.ID] = instance
	}
	batch.NJobs += len(jobs)
	batch.State = api.BatchInProgress
	if logicalEnd != nil {
		batch.LogicalEndTime = *logicalEnd
	}
	return nil
}

func (r *fakeBatches) CountInFlightJobs(ctx context.Context, accountID int64) (int, error) {
	count := 0
	for _, job := range r.s.jobs {
		batch, ok := r.s.batches[job.BatchID]
		if ok && batch.AccountID == accountID && !job.Terminal() {
			count++
		}
	}
	return count, nil
}

type fakeJobs struct{ s *fakeState }

func (r *fakeJobs) Get(ctx context.Context, id int64) (*repository.Job, error) {
	if job, ok := r.s.jobs[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, &rpcerrors.ErrNotFound{Type: "job", Value: fmt.Sprintf("%d", id)}
}

func (r *fakeJobs) GetByName(ctx context.Context, name string) (*repository.Job, error) {
	for _, job := range r.s.jobs {
		if job.Name == name {
			copied := *job
			return &copied, nil
		}
	}
	return nil, &rpcerrors.ErrNotFound{Type: "job", Value: name}
}

func (r *fakeJobs) ListByBatch(ctx context.Context, batchID int64) ([]*repository.Job, error) {
	jobs := make([]*repository.Job, 0)
	for _, job := range r.s.jobs {
		if job.BatchID == batchID {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (r *fakeJobs) GetInstance(ctx context.Context, id int64) (*repository.JobInstance, error) {
	if instance, ok := r.s.instances[id]; ok {
		copied := *instance
		return &copied, nil
	}
	return nil, &rpcerrors.ErrNotFound{Type: "job instance", Value: fmt.Sprintf("%d", id)}
}

func (r *fakeJobs) GetInstanceByName(ctx context.Context, name string) (*repository.JobInstance, error) {
	for _, instance := range r.s.instances {
		if instance.Name == name {
			copied := *instance
			return &copied, nil
		}
	}
	return nil, &rpcerrors.ErrNotFound{Type: "job instance", Value: name}
}

func (r *fakeJobs) ListInstances(ctx context.Context, jobID int64) ([]*repository.JobInstance, error) {
	instances := make([]*repository.JobInstance, 0)
	for _, instance := range r.s.instances {
		if instance.JobID == jobID {
			copied := *instance
			instances = append(instances, &copied)
		}
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID > instances[j].ID })
	return instances, nil
}

func (r *fakeJobs) BatchCPUTime(ctx context.Context, batchID int64) (float64, error) {
	var total float64
	for _, instance := range r.s.instances {
		job, ok := r.s.jobs[instance.JobID]
		if ok && job.BatchID == batchID {
			total += instance.CPUTime
		}
	}
	return total, nil
}

func (r *fakeJobs) Abort(ctx context.Context, jobIDs []int64) error {
	ids := map[int64]bool{}
	for _, id := range jobIDs {
		ids[id] = true
	}
	for _, instance := range r.s.instances {
		if !ids[instance.JobID] {
			continue
		}
		if instance.State == api.InstanceUnsent || instance.State == api.InstanceInProgress {
			instance.State = api.InstanceAborted
		}
	}
	for id := range ids {
		job, ok := r.s.jobs[id]
		if ok && job.CanonicalInstanceID == 0 {
			job.ErrorMask |= repository.ErrorMaskCancelled
		}
	}
	return nil
}

func (r *fakeJobs) MarkRetired(ctx context.Context, batchID int64) error {
	r.s.retired[batchID] = true
	return nil
}

type fakeFiles struct{ s *fakeState }

func (r *fakeFiles) Get(ctx context.Context, physName string) (*repository.FileRecord, error) {
	if record, ok := r.s.files[physName]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, &rpcerrors.ErrNotFound{Type: "file", Value: physName}
}

func (r *fakeFiles) Upsert(ctx context.Context, record *repository.FileRecord) error {
	existing, ok := r.s.files[record.PhysName]
	if !ok {
		copied := *record
		r.s.files[record.PhysName] = &copied
		return nil
	}
	if record.DeleteTime > existing.DeleteTime {
		existing.DeleteTime = record.DeleteTime
	}
	return nil
}

func (r *fakeFiles) Associate(ctx context.Context, batchID int64, physName string) error {
	r.s.assocs[fmt.Sprintf("%d/%s", batchID, physName)] = true
	return nil
}

func (r *fakeFiles) Present(ctx context.Context, physNames []string) (map[string]bool, error) {
	present := map[string]bool{}
	for _, physName := range physNames {
		if _, ok := r.s.files[physName]; ok {
			present[physName] = true
		}
	}
	return present, nil
}
