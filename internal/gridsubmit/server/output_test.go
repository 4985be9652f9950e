package server

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

// finishJob simulates the external scheduler: stores output content, records
// it on the job's instance and marks the instance canonical.
func finishJob(t *testing.T, env *testEnv, jobName string, outputs ...string) *repository.JobInstance {
	t.Helper()
	job, err := env.server.jobs.GetByName(context.Background(), jobName)
	require.NoError(t, err)

	var instance *repository.JobInstance
	for _, candidate := range env.state.instances {
		if candidate.JobID == job.ID {
			instance = candidate
			break
		}
	}
	require.NotNil(t, instance)

	for _, content := range outputs {
		staged, err := env.server.outputs.StageContent(strings.NewReader(content))
		require.NoError(t, err)
		instance.Outfiles = append(instance.Outfiles, repository.InstanceOutfile{
			PhysName: staged.PhysName,
			Nbytes:   staged.Nbytes,
		})
	}
	instance.State = api.InstanceOverSuccess
	env.state.jobs[job.ID].CanonicalInstanceID = instance.ID
	return instance
}

func getOutput(env *testEnv, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/get_output?"+query, nil)
	w := httptest.NewRecorder()
	env.server.HandleGetOutput(w, req)
	return w
}

func submitNamedJobs(t *testing.T, env *testEnv, names ...string) int64 {
	t.Helper()
	batch := simpleBatch("wordcount", len(names))
	for i, name := range names {
		batch.Jobs[i].Name = name
	}
	resp, err := env.server.SubmitBatch(context.Background(), env.account, &api.Request{Batch: batch})
	require.NoError(t, err)
	return resp.BatchID
}

func TestGetOutput_SingleResultFile(t *testing.T) {
	env := newTestEnv(t)
	submitNamedJobs(t, env, "job-a")
	instance := finishJob(t, env, "job-a", "the answer is 42")

	credential := OutputCredential(env.account.Authenticator, instance.Name)
	w := getOutput(env, fmt.Sprintf("cmd=result&result_name=%s&auth=%s", instance.Name, credential))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "the answer is 42", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), instance.Name+"__file_0")
}

func TestGetOutput_BadCredential(t *testing.T) {
	env := newTestEnv(t)
	submitNamedJobs(t, env, "job-a")
	instance := finishJob(t, env, "job-a", "secret output")

	w := getOutput(env, fmt.Sprintf("cmd=result&result_name=%s&auth=%s",
		instance.Name, OutputCredential("wrong-secret", instance.Name)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = getOutput(env, fmt.Sprintf("cmd=result&result_name=%s", instance.Name))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetOutput_MultipleFilesZipped(t *testing.T) {
	env := newTestEnv(t)
	submitNamedJobs(t, env, "job-a")
	instance := finishJob(t, env, "job-a", "first file", "second file")

	credential := OutputCredential(env.account.Authenticator, instance.Name)
	w := getOutput(env, fmt.Sprintf("cmd=result&result_name=%s&auth=%s", instance.Name, credential))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	archive, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, archive.File, 2)
	assert.Equal(t, instance.Name+"__file_0", archive.File[0].Name)
	assert.Equal(t, instance.Name+"__file_1", archive.File[1].Name)
	assert.Equal(t, "first file", readZipFile(t, archive.File[0]))
	assert.Equal(t, "second file", readZipFile(t, archive.File[1]))
}

func readZipFile(t *testing.T, f *zip.File) string {
	t.Helper()
	r, err := f.Open()
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(content)
}

func TestGetOutput_FileNum(t *testing.T) {
	env := newTestEnv(t)
	submitNamedJobs(t, env, "job-a")
	instance := finishJob(t, env, "job-a", "first file", "second file")

	// file_num selects one output file instead of the zip.
	credential := OutputCredential(env.account.Authenticator, instance.Name)
	w := getOutput(env, fmt.Sprintf("cmd=result&result_name=%s&file_num=1&auth=%s", instance.Name, credential))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "second file", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), instance.Name+"__file_1")

	w = getOutput(env, fmt.Sprintf("cmd=result&result_name=%s&file_num=5&auth=%s", instance.Name, credential))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = getOutput(env, fmt.Sprintf("cmd=result&result_name=%s&file_num=many&auth=%s", instance.Name, credential))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The workunit path takes file_num too.
	credential = OutputCredential(env.account.Authenticator, "job-a")
	w = getOutput(env, "cmd=workunit&wu_name=job-a&file_num=0&auth="+credential)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "first file", w.Body.String())
}

func TestGetOutput_Workunit(t *testing.T) {
	env := newTestEnv(t)
	submitNamedJobs(t, env, "job-a", "job-b")
	finishJob(t, env, "job-a", "canonical output")

	credential := OutputCredential(env.account.Authenticator, "job-a")
	w := getOutput(env, "cmd=workunit&wu_name=job-a&auth="+credential)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "canonical output", w.Body.String())

	// job-b has no canonical result yet.
	credential = OutputCredential(env.account.Authenticator, "job-b")
	w = getOutput(env, "cmd=workunit&wu_name=job-b&auth="+credential)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOutput_BatchArchive(t *testing.T) {
	env := newTestEnv(t)
	batchID := submitNamedJobs(t, env, "job-a", "job-b")
	instance := finishJob(t, env, "job-a", "done output")
	// job-b is still running and must be skipped, not fail the archive.

	credential := OutputCredential(env.account.Authenticator, fmt.Sprintf("%d", batchID))
	w := getOutput(env, fmt.Sprintf("cmd=batch&batch_id=%d&auth=%s", batchID, credential))

	require.Equal(t, http.StatusOK, w.Code)
	archive, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, archive.File, 1)
	assert.Equal(t, instance.Name+"__file_0", archive.File[0].Name)
	assert.Equal(t, "done output", readZipFile(t, archive.File[0]))
}

func TestGetOutput_File(t *testing.T) {
	env := newTestEnv(t)
	staged, err := env.server.outputs.StageContent(strings.NewReader("raw file"))
	require.NoError(t, err)

	credential := OutputCredential(env.account.Authenticator, staged.PhysName)
	w := getOutput(env, fmt.Sprintf("cmd=file&file_name=%s&account_id=%d&auth=%s",
		staged.PhysName, env.account.ID, credential))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "raw file", w.Body.String())

	w = getOutput(env, fmt.Sprintf("cmd=file&file_name=jf_missing&account_id=%d&auth=%s",
		env.account.ID, OutputCredential(env.account.Authenticator, "jf_missing")))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOutput_UnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	w := getOutput(env, "cmd=everything")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
