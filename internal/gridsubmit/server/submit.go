package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/common/util"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/filestore"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

func (s *SubmitServer) EstimateBatch(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	if req.Batch == nil || req.Batch.AppName == "" {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "estimate_batch requires a batch with app_name"}
	}
	if _, err := s.apps.GetByName(ctx, req.Batch.AppName); err != nil {
		return nil, err
	}
	seconds, err := s.estimator.EstimateSeconds(req.Batch)
	if err != nil {
		return nil, err
	}
	return &api.Response{Seconds: seconds}, nil
}

func (s *SubmitServer) CreateBatch(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	if req.AppName == "" {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "create_batch requires app_name"}
	}
	app, err := s.apps.GetByName(ctx, req.AppName)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, account, app); err != nil {
		return nil, err
	}
	id, err := s.batches.Create(ctx, &repository.Batch{
		AccountID:  account.ID,
		AppID:      app.ID,
		Name:       req.BatchName,
		State:      api.BatchInit,
		CreateTime: s.clock.Now().Unix(),
		ExpireTime: req.ExpireTime,
	})
	if err != nil {
		return nil, err
	}
	log.Infof("Created batch %d (%q) for account %d", id, req.BatchName, account.ID)
	return &api.Response{Success: true, BatchID: id}, nil
}

func (s *SubmitServer) SubmitBatch(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	desc := req.Batch
	if desc == nil || desc.AppName == "" {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "submit_batch requires a batch with app_name"}
	}
	app, err := s.apps.GetByName(ctx, desc.AppName)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, account, app); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx, account, len(desc.Jobs)); err != nil {
		return nil, err
	}

	var batch *repository.Batch
	if desc.BatchID != 0 {
		batch, err = s.batches.Get(ctx, desc.BatchID)
		if err != nil {
			return nil, err
		}
		if err := requireOwner(batch, account); err != nil {
			return nil, err
		}
		// Also enforced under the row lock in AttachJobs; checked here to
		// fail before any files are staged.
		if batch.State != api.BatchInit {
			return nil, &rpcerrors.ErrBadState{BatchID: batch.ID, State: batch.State, Op: "adding jobs"}
		}
		if batch.AppID != app.ID {
			return nil, &rpcerrors.ErrMalformedRequest{
				Message: fmt.Sprintf("batch %d was created for a different app", batch.ID),
			}
		}
	} else {
		id, err := s.batches.Create(ctx, &repository.Batch{
			AccountID:  account.ID,
			AppID:      app.ID,
			Name:       desc.BatchName,
			State:      api.BatchInit,
			CreateTime: s.clock.Now().Unix(),
			ExpireTime: desc.ExpireTime,
		})
		if err != nil {
			return nil, err
		}
		batch, err = s.batches.Get(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	// Priority: explicit per batch or per job, otherwise the fair-share
	// logical end time. The charge is applied against the account clock
	// inside the submit transaction, so concurrent submissions by one
	// account stack their charges instead of overwriting each other.
	var charge *repository.FairShareCharge
	defaultPriority := int64(0)
	if desc.Priority != nil {
		defaultPriority = *desc.Priority
	} else {
		totalFpops, err := s.estimator.TotalFpops(desc)
		if err != nil {
			return nil, err
		}
		charge = &repository.FairShareCharge{
			NowSec:  float64(s.clock.Now().Unix()),
			Seconds: s.estimator.ChargeSeconds(totalFpops),
		}
	}

	// Stage all input files before anything is enqueued, so the enqueuer
	// never references a missing file. A staging failure aborts the whole
	// submission and leaves the batch in INIT.
	jobs := make([]*repository.Job, 0, len(desc.Jobs))
	for i := range desc.Jobs {
		jd := &desc.Jobs[i]
		template, err := s.resolveInputTemplate(desc, jd, app)
		if err != nil {
			return nil, err
		}
		name := jd.Name
		if name == "" {
			name = fmt.Sprintf("batch_%d_%s", batch.ID, util.NewULID())
		}
		if err := validateInputFiles(name, template, jd.InputFiles); err != nil {
			return nil, err
		}
		inputs, err := s.stageJobInputs(ctx, account, batch.ID, jd, template, batch.ExpireTime)
		if err != nil {
			return nil, err
		}
		fpopsEst, _ := s.estimator.JobFpops(jd, desc)
		priority := defaultPriority
		fairShare := charge != nil
		if jd.Priority != nil {
			priority = *jd.Priority
			fairShare = false
		}
		jobs = append(jobs, &repository.Job{
			Name:              name,
			CommandLine:       jd.CommandLine,
			RscFpopsEst:       fpopsEst,
			RscFpopsBound:     desc.JobParams.RscFpopsBound,
			RscMemoryBound:    desc.JobParams.RscMemoryBound,
			RscDiskBound:      desc.JobParams.RscDiskBound,
			DelayBound:        desc.JobParams.DelayBound,
			Priority:          priority,
			FairSharePriority: fairShare,
			InputFiles:        inputs,
		})
	}

	err = s.batches.AttachJobs(ctx, batch.ID, jobs, charge, func(jobs []*repository.Job) error {
		return s.enqueuer.Enqueue(ctx, app.Name, batch.ID, jobs)
	})
	if err != nil {
		var enqueueErr *rpcerrors.ErrEnqueueFailure
		if errors.As(err, &enqueueErr) {
			s.metrics.RecordEnqueueFailure()
		}
		return nil, err
	}

	s.metrics.RecordBatchSubmitted(len(jobs))
	log.Infof("Submitted batch %d with %d jobs for account %d", batch.ID, len(jobs), account.ID)
	return &api.Response{Success: true, BatchID: batch.ID}, nil
}

// stageJobInputs resolves one job's input files: local, sandbox and inline
// content is staged into the content-addressed store, previously staged
// files are verified present, and remote files are passed through by
// reference. Every staged file is recorded and associated with the batch so
// the reaper will not remove it while the batch is live.
func (s *SubmitServer) stageJobInputs(
	ctx context.Context,
	account *repository.Account,
	batchID int64,
	jd *api.JobDescription,
	template *api.JobTemplate,
	deleteTime int64,
) ([]repository.JobInputFile, error) {
	now := s.clock.Now().Unix()
	inputs := make([]repository.JobInputFile, 0, len(jd.InputFiles))
	for i := range jd.InputFiles {
		f := &jd.InputFiles[i]
		logicalName := fmt.Sprintf("file_%d", i)
		if template != nil && i < len(template.Files) {
			logicalName = template.Files[i].LogicalName
		}

		switch f.Mode {
		case api.FileModeRemote:
			if f.URL == "" || f.MD5 == "" || f.Nbytes <= 0 {
				return nil, &rpcerrors.ErrMalformedRequest{
					Message: "remote input files require url, md5 and nbytes",
				}
			}
			inputs = append(inputs, repository.JobInputFile{
				Mode:        f.Mode,
				LogicalName: logicalName,
				URL:         f.URL,
				Nbytes:      f.Nbytes,
				MD5:         f.MD5,
			})

		case api.FileModeLocal, api.FileModeSandbox, api.FileModeInline:
			var staged filestore.StagedFile
			var err error
			switch f.Mode {
			case api.FileModeLocal:
				staged, err = s.store.StageLocal(f.Source)
			case api.FileModeSandbox:
				var path string
				path, err = s.sandboxPath(account, f.Source)
				if err == nil {
					staged, err = s.store.StageLocal(path)
				}
			default:
				staged, err = s.store.StageContent(strings.NewReader(f.Source))
			}
			if err != nil {
				return nil, err
			}
			s.metrics.RecordBytesStaged(staged.Nbytes)
			if err := s.recordStagedFile(ctx, batchID, staged.PhysName, staged.MD5, staged.Nbytes, now, deleteTime); err != nil {
				return nil, err
			}
			inputs = append(inputs, repository.JobInputFile{
				Mode:        f.Mode,
				LogicalName: logicalName,
				PhysName:    staged.PhysName,
				Nbytes:      float64(staged.Nbytes),
				MD5:         staged.MD5,
			})

		case api.FileModeLocalStaged:
			physName := f.Source
			if !s.store.Present(physName) {
				return nil, &rpcerrors.ErrNotFound{Type: "file", Value: physName}
			}
			md5sum, err := s.store.Digest(physName)
			if err != nil {
				return nil, err
			}
			if err := s.files.Associate(ctx, batchID, physName); err != nil {
				return nil, err
			}
			inputs = append(inputs, repository.JobInputFile{
				Mode:        f.Mode,
				LogicalName: logicalName,
				PhysName:    physName,
				MD5:         md5sum,
			})

		default:
			return nil, &rpcerrors.ErrMalformedRequest{
				Message: fmt.Sprintf("unknown input file mode %q", f.Mode),
			}
		}
	}
	return inputs, nil
}

// sandboxPath resolves a sandbox-relative source inside the account's own
// sandbox directory. Sources are confined there: leading separators and ..
// segments cannot escape into another account's files.
func (s *SubmitServer) sandboxPath(account *repository.Account, source string) (string, error) {
	if s.sandboxDir == "" {
		return "", &rpcerrors.ErrMalformedRequest{Message: "sandbox input files are not enabled"}
	}
	cleaned := filepath.Clean("/" + source)
	if cleaned == "/" {
		return "", &rpcerrors.ErrMalformedRequest{Message: "sandbox input files require a file name"}
	}
	return filepath.Join(s.sandboxDir, account.Name, cleaned), nil
}

func (s *SubmitServer) recordStagedFile(ctx context.Context, batchID int64, physName, md5sum string, nbytes, now, deleteTime int64) error {
	err := s.files.Upsert(ctx, &repository.FileRecord{
		PhysName:   physName,
		MD5:        md5sum,
		Nbytes:     nbytes,
		CreateTime: now,
		DeleteTime: deleteTime,
	})
	if err != nil {
		return err
	}
	return s.files.Associate(ctx, batchID, physName)
}

func (s *SubmitServer) QueryBatches(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	batches, err := s.batches.ListByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	infos := make([]*api.BatchInfo, 0, len(batches))
	for _, batch := range batches {
		batch, err = s.refreshBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		info, err := s.batchInfo(ctx, batch, req.GetCPUTime)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return &api.Response{Batches: infos}, nil
}

func (s *SubmitServer) QueryBatch(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	batch, err := s.getOwnedBatch(ctx, account, req.BatchID, req.BatchName)
	if err != nil {
		return nil, err
	}
	batch, err = s.refreshBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	info, err := s.batchInfo(ctx, batch, req.GetCPUTime)
	if err != nil {
		return nil, err
	}
	jobs, err := s.jobs.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	jobInfos := make([]*api.JobInfo, 0, len(jobs))
	for _, job := range jobs {
		jobInfo := &api.JobInfo{
			ID:                  job.ID,
			Name:                job.Name,
			CanonicalInstanceID: job.CanonicalInstanceID,
			ErrorMask:           job.ErrorMask,
		}
		if req.GetJobDetails {
			instances, err := s.jobs.ListInstances(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			for _, instance := range instances {
				jobInfo.Status = append(jobInfo.Status, fmt.Sprintf("%s:%s", instance.Name, instance.State))
			}
		}
		jobInfos = append(jobInfos, jobInfo)
	}
	return &api.Response{Batch: info, Jobs: jobInfos}, nil
}

func (s *SubmitServer) QueryJob(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	if req.JobID == 0 {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "query_job requires job_id"}
	}
	job, err := s.jobs.Get(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	batch, err := s.batches.Get(ctx, job.BatchID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(batch, account); err != nil {
		return nil, err
	}
	instances, err := s.jobs.ListInstances(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	infos := make([]*api.InstanceInfo, 0, len(instances))
	for _, instance := range instances {
		info := &api.InstanceInfo{
			ID:      instance.ID,
			Name:    instance.Name,
			State:   instance.State,
			CPUTime: instance.CPUTime,
		}
		for _, outfile := range instance.Outfiles {
			info.Outfiles = append(info.Outfiles, api.OutfileInfo{Size: outfile.Nbytes})
		}
		infos = append(infos, info)
	}
	return &api.Response{Instances: infos}, nil
}

func (s *SubmitServer) AbortBatch(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	batch, err := s.getOwnedBatch(ctx, account, req.BatchID, req.BatchName)
	if err != nil {
		return nil, err
	}
	// Aborting twice is a no-op success.
	if batch.State == api.BatchAborted {
		return &api.Response{Success: true}, nil
	}
	if !batch.State.CanTransitionTo(api.BatchAborted) {
		return nil, &rpcerrors.ErrBadState{BatchID: batch.ID, State: batch.State, Op: "abort"}
	}
	jobs, err := s.jobs.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, err
	}
	jobIDs := make([]int64, 0, len(jobs))
	for _, job := range jobs {
		jobIDs = append(jobIDs, job.ID)
	}
	if err := s.jobs.Abort(ctx, jobIDs); err != nil {
		return nil, err
	}
	state := api.BatchAborted
	if err := s.batches.Update(ctx, batch.ID, repository.BatchUpdate{State: &state}); err != nil {
		return nil, err
	}
	log.Infof("Aborted batch %d (%d jobs)", batch.ID, len(jobIDs))
	return &api.Response{Success: true}, nil
}

func (s *SubmitServer) AbortJobs(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	if len(req.JobNames) == 0 {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "abort_jobs requires job_names"}
	}
	var result *multierror.Error
	jobIDs := make([]int64, 0, len(req.JobNames))
	for _, name := range req.JobNames {
		job, err := s.jobs.GetByName(ctx, name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		batch, err := s.batches.Get(ctx, job.BatchID)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := requireOwner(batch, account); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		jobIDs = append(jobIDs, job.ID)
	}
	if err := s.jobs.Abort(ctx, jobIDs); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &api.Response{Success: true}, nil
}

func (s *SubmitServer) RetireBatch(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	batch, err := s.getOwnedBatch(ctx, account, req.BatchID, req.BatchName)
	if err != nil {
		return nil, err
	}
	if batch.State == api.BatchRetired {
		return &api.Response{Success: true}, nil
	}
	if err := s.jobs.MarkRetired(ctx, batch.ID); err != nil {
		return nil, err
	}
	state := api.BatchRetired
	if err := s.batches.Update(ctx, batch.ID, repository.BatchUpdate{State: &state}); err != nil {
		return nil, err
	}
	log.Infof("Retired batch %d", batch.ID)
	return &api.Response{Success: true}, nil
}

func (s *SubmitServer) SetExpireTime(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	batch, err := s.getOwnedBatch(ctx, account, req.BatchID, req.BatchName)
	if err != nil {
		return nil, err
	}
	expire := req.ExpireTime
	err = s.batches.Update(ctx, batch.ID, repository.BatchUpdate{ExpireTime: &expire})
	if err != nil {
		return nil, err
	}
	return &api.Response{Success: true}, nil
}

func (s *SubmitServer) GetTemplates(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	var app *repository.App
	var err error
	switch {
	case req.AppName != "":
		app, err = s.apps.GetByName(ctx, req.AppName)
	case req.JobName != "":
		var job *repository.Job
		job, err = s.jobs.GetByName(ctx, req.JobName)
		if err == nil {
			var batch *repository.Batch
			batch, err = s.batches.Get(ctx, job.BatchID)
			if err == nil {
				app, err = s.apps.Get(ctx, batch.AppID)
			}
		}
	default:
		return nil, &rpcerrors.ErrMalformedRequest{Message: "get_templates requires app_name or job_name"}
	}
	if err != nil {
		return nil, err
	}
	input, err := parseTemplate(app.InputTemplate)
	if err != nil {
		return nil, err
	}
	output, err := parseTemplate(app.OutputTemplate)
	if err != nil {
		return nil, err
	}
	return &api.Response{InputTemplate: input, OutputTemplate: output}, nil
}

func (s *SubmitServer) getOwnedBatch(ctx context.Context, account *repository.Account, id int64, name string) (*repository.Batch, error) {
	var batch *repository.Batch
	var err error
	switch {
	case id != 0:
		batch, err = s.batches.Get(ctx, id)
	case name != "":
		batch, err = s.batches.GetByName(ctx, account.ID, name)
	default:
		return nil, &rpcerrors.ErrMalformedRequest{Message: "batch_id or batch_name required"}
	}
	if err != nil {
		return nil, err
	}
	if err := requireOwner(batch, account); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *SubmitServer) batchInfo(ctx context.Context, batch *repository.Batch, withCPUTime bool) (*api.BatchInfo, error) {
	info := &api.BatchInfo{
		ID:              batch.ID,
		Name:            batch.Name,
		State:           batch.State,
		CreateTime:      batch.CreateTime,
		ExpireTime:      batch.ExpireTime,
		CompletionTime:  batch.CompletionTime,
		NJobs:           batch.NJobs,
		FractionDone:    batch.FractionDone,
		NErrorJobs:      batch.NErrorJobs,
		CreditEstimate:  batch.CreditEstimate,
		CreditCanonical: batch.CreditCanonical,
		LogicalEndTime:  batch.LogicalEndTime,
	}
	if app, err := s.apps.Get(ctx, batch.AppID); err == nil {
		info.AppName = app.Name
	}
	if withCPUTime {
		cpuTime, err := s.jobs.BatchCPUTime(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		info.TotalCPUTime = cpuTime
	}
	return info, nil
}
