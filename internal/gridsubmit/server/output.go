package server

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

// HandleGetOutput serves completed job output over plain GET so download
// URLs can be pasted into a browser or fetched with curl. The caller proves
// entitlement with a per-target credential derived from the owning account's
// authenticator; see OutputCredential.
//
//	?cmd=result&result_name=...    one instance's output
//	?cmd=workunit&wu_name=...      the canonical instance of one job
//	?cmd=batch&batch_id=...        every job's canonical output, zipped
//	?cmd=file&file_name=...&account_id=...   one stored file by physical name
//
// result and workunit take an optional file_num selecting a single output
// file by its template position.
func (s *SubmitServer) HandleGetOutput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	credential := q.Get("auth")

	fileNum, err := parseFileNum(q.Get("file_num"))
	if err != nil {
		writeOutputError(w, err)
		return
	}

	switch q.Get("cmd") {
	case "result":
		err = s.serveInstanceOutput(ctx, w, q.Get("result_name"), credential, fileNum)
	case "workunit":
		err = s.serveJobOutput(ctx, w, q.Get("wu_name"), credential, fileNum)
	case "batch":
		var batchID int64
		batchID, err = strconv.ParseInt(q.Get("batch_id"), 10, 64)
		if err != nil {
			err = &rpcerrors.ErrMalformedRequest{Message: "batch_id must be an integer"}
		} else {
			err = s.serveBatchOutput(ctx, w, batchID, credential)
		}
	case "file":
		var accountID int64
		accountID, err = strconv.ParseInt(q.Get("account_id"), 10, 64)
		if err != nil {
			err = &rpcerrors.ErrMalformedRequest{Message: "account_id must be an integer"}
		} else {
			err = s.serveFileOutput(ctx, w, q.Get("file_name"), accountID, credential)
		}
	default:
		err = &rpcerrors.ErrMalformedRequest{Message: "cmd must be result, workunit, batch or file"}
	}
	if err != nil {
		writeOutputError(w, err)
	}
}

func writeOutputError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch rpcerrors.CodeFromError(err) {
	case api.CodeAuthError, api.CodeAuthorizationError:
		status = http.StatusForbidden
	case api.CodeNotFound:
		status = http.StatusNotFound
	case api.CodeMalformedRequest:
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("output request failed")
	}
	http.Error(w, err.Error(), status)
}

// parseFileNum parses the optional file_num parameter; nil means all files.
func parseFileNum(value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "file_num must be a non-negative integer"}
	}
	return &n, nil
}

func (s *SubmitServer) serveInstanceOutput(ctx context.Context, w http.ResponseWriter, name string, credential string, fileNum *int) error {
	instance, err := s.jobs.GetInstanceByName(ctx, name)
	if err != nil {
		return err
	}
	account, template, err := s.instanceContext(ctx, instance)
	if err != nil {
		return err
	}
	if !ValidCredential(account.Authenticator, name, credential) {
		return &rpcerrors.ErrAuth{Message: "bad output credential"}
	}
	return s.streamInstance(w, instance, template, fileNum)
}

func (s *SubmitServer) serveJobOutput(ctx context.Context, w http.ResponseWriter, name string, credential string, fileNum *int) error {
	job, err := s.jobs.GetByName(ctx, name)
	if err != nil {
		return err
	}
	batch, err := s.batches.Get(ctx, job.BatchID)
	if err != nil {
		return err
	}
	account, err := s.accounts.Get(ctx, batch.AccountID)
	if err != nil {
		return err
	}
	if !ValidCredential(account.Authenticator, name, credential) {
		return &rpcerrors.ErrAuth{Message: "bad output credential"}
	}
	if job.CanonicalInstanceID == 0 {
		return &rpcerrors.ErrNotFound{Type: "canonical result for job", Value: name}
	}
	instance, err := s.jobs.GetInstance(ctx, job.CanonicalInstanceID)
	if err != nil {
		return err
	}
	app, err := s.apps.Get(ctx, batch.AppID)
	if err != nil {
		return err
	}
	template, err := s.resolveOutputTemplate(app)
	if err != nil {
		return err
	}
	return s.streamInstance(w, instance, template, fileNum)
}

func (s *SubmitServer) serveBatchOutput(ctx context.Context, w http.ResponseWriter, batchID int64, credential string) error {
	batch, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return err
	}
	account, err := s.accounts.Get(ctx, batch.AccountID)
	if err != nil {
		return err
	}
	target := strconv.FormatInt(batchID, 10)
	if !ValidCredential(account.Authenticator, target, credential) {
		return &rpcerrors.ErrAuth{Message: "bad output credential"}
	}
	app, err := s.apps.Get(ctx, batch.AppID)
	if err != nil {
		return err
	}
	template, err := s.resolveOutputTemplate(app)
	if err != nil {
		return err
	}
	jobs, err := s.jobs.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	// Jobs without a canonical result yet, and outfiles whose stored copy
	// has already been reaped, are silently skipped: a partial archive of a
	// running batch is the intended behavior.
	var entries []zipEntry
	for _, job := range jobs {
		if job.CanonicalInstanceID == 0 {
			continue
		}
		instance, err := s.jobs.GetInstance(ctx, job.CanonicalInstanceID)
		if err != nil {
			return err
		}
		for i, outfile := range instance.Outfiles {
			path, err := s.outputs.Resolve(outfile.PhysName)
			if err != nil {
				continue
			}
			entries = append(entries, zipEntry{
				Name: outputFileName(instance.Name, template, i),
				Path: path,
			})
		}
	}
	archiveName := batch.Name
	if archiveName == "" {
		archiveName = "batch_" + target
	}
	return s.streamZip(w, archiveName+".zip", entries)
}

func (s *SubmitServer) serveFileOutput(ctx context.Context, w http.ResponseWriter, physName string, accountID int64, credential string) error {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !ValidCredential(account.Authenticator, physName, credential) {
		return &rpcerrors.ErrAuth{Message: "bad output credential"}
	}
	path, err := s.outputs.Resolve(physName)
	if err != nil {
		return err
	}
	return streamFile(w, path, physName)
}

func (s *SubmitServer) instanceContext(ctx context.Context, instance *repository.JobInstance) (*repository.Account, *api.JobTemplate, error) {
	job, err := s.jobs.Get(ctx, instance.JobID)
	if err != nil {
		return nil, nil, err
	}
	batch, err := s.batches.Get(ctx, job.BatchID)
	if err != nil {
		return nil, nil, err
	}
	account, err := s.accounts.Get(ctx, batch.AccountID)
	if err != nil {
		return nil, nil, err
	}
	app, err := s.apps.Get(ctx, batch.AppID)
	if err != nil {
		return nil, nil, err
	}
	template, err := s.resolveOutputTemplate(app)
	if err != nil {
		return nil, nil, err
	}
	return account, template, nil
}

// streamInstance serves one instance's output: a single file directly, more
// than one as a zip named after the instance. A file_num selects exactly one
// output file by position.
func (s *SubmitServer) streamInstance(w http.ResponseWriter, instance *repository.JobInstance, template *api.JobTemplate, fileNum *int) error {
	if len(instance.Outfiles) == 0 {
		return &rpcerrors.ErrNotFound{Type: "output files for instance", Value: instance.Name}
	}
	if fileNum != nil {
		if *fileNum >= len(instance.Outfiles) {
			return &rpcerrors.ErrNotFound{
				Type:  "output file",
				Value: fmt.Sprintf("%s file %d", instance.Name, *fileNum),
			}
		}
		path, err := s.outputs.Resolve(instance.Outfiles[*fileNum].PhysName)
		if err != nil {
			return err
		}
		return streamFile(w, path, outputFileName(instance.Name, template, *fileNum))
	}
	if len(instance.Outfiles) == 1 {
		path, err := s.outputs.Resolve(instance.Outfiles[0].PhysName)
		if err != nil {
			return err
		}
		return streamFile(w, path, outputFileName(instance.Name, template, 0))
	}
	entries := make([]zipEntry, 0, len(instance.Outfiles))
	for i, outfile := range instance.Outfiles {
		path, err := s.outputs.Resolve(outfile.PhysName)
		if err != nil {
			return err
		}
		entries = append(entries, zipEntry{
			Name: outputFileName(instance.Name, template, i),
			Path: path,
		})
	}
	return s.streamZip(w, instance.Name+".zip", entries)
}

// outputFileName names the i-th output of an instance for download, using
// the app's output template logical names when it has them.
func outputFileName(instanceName string, template *api.JobTemplate, i int) string {
	logical := fmt.Sprintf("file_%d", i)
	if template != nil && i < len(template.Files) {
		logical = template.Files[i].LogicalName
	}
	return instanceName + "__" + logical
}

type zipEntry struct {
	Name string
	Path string
}

// streamZip builds the archive in a temp file first so a mid-archive read
// failure turns into an error response instead of a truncated download.
func (s *SubmitServer) streamZip(w http.ResponseWriter, name string, entries []zipEntry) error {
	tmp, err := os.CreateTemp("", "gridsubmit-output-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	zw := zip.NewWriter(tmp)
	for _, entry := range entries {
		if err := addZipEntry(zw, entry); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}
	info, err := tmp.Stat()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, err = io.Copy(w, tmp)
	return err
}

func addZipEntry(zw *zip.Writer, entry zipEntry) error {
	f, err := os.Open(entry.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	dst, err := zw.Create(entry.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}

func streamFile(w http.ResponseWriter, path string, downloadName string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	_, err = io.Copy(w, f)
	return err
}
