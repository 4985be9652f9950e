package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volgrid/gridsubmit/pkg/api"
)

func postRPC(t *testing.T, env *testEnv, req *api.Request) *api.Response {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/submit_rpc", bytes.NewReader(body))
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, httpReq)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestSubmitRPC_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp := postRPC(t, env, &api.Request{
		Command:       api.CmdSubmitBatch,
		Authenticator: "alice-secret",
		Batch:         simpleBatch("wordcount", 2),
	})
	require.Nil(t, resp.Error)
	assert.True(t, resp.Success)
	require.NotZero(t, resp.BatchID)

	resp = postRPC(t, env, &api.Request{
		Command:       api.CmdQueryBatch,
		Authenticator: "alice-secret",
		BatchID:       resp.BatchID,
	})
	require.Nil(t, resp.Error)
	require.NotNil(t, resp.Batch)
	assert.Equal(t, api.BatchInProgress, resp.Batch.State)
	assert.Len(t, resp.Jobs, 2)
}

func TestSubmitRPC_ErrorEnvelope(t *testing.T) {
	env := newTestEnv(t)

	// Bad authenticator.
	resp := postRPC(t, env, &api.Request{
		Command:       api.CmdQueryBatches,
		Authenticator: "wrong",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.CodeAuthError, resp.Error.Code)

	// Unknown command.
	resp = postRPC(t, env, &api.Request{
		Command:       "make_coffee",
		Authenticator: "alice-secret",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.CodeMalformedRequest, resp.Error.Code)

	// Quota exceeded surfaces its code.
	env.state.grants[env.account.ID].MaxJobsInFlight = 1
	resp = postRPC(t, env, &api.Request{
		Command:       api.CmdSubmitBatch,
		Authenticator: "alice-secret",
		Batch:         simpleBatch("wordcount", 2),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.CodeQuotaExceeded, resp.Error.Code)
}

func TestSubmitRPC_MalformedBody(t *testing.T) {
	env := newTestEnv(t)
	httpReq := httptest.NewRequest(http.MethodPost, "/submit_rpc", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, httpReq)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.CodeMalformedRequest, resp.Error.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func postJobFile(t *testing.T, env *testEnv, req *api.Request, files map[string]string) *api.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	requestPart, err := mw.CreateFormField("request")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(requestPart).Encode(req))
	for _, physName := range req.PhysNames {
		content, ok := files[physName]
		if !ok {
			continue
		}
		filePart, err := mw.CreateFormFile("file", physName)
		require.NoError(t, err)
		_, err = filePart.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	httpReq := httptest.NewRequest(http.MethodPost, "/job_file", &body)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.server.Routes().ServeHTTP(w, httpReq)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestJobFile_UploadThenQuery(t *testing.T) {
	env := newTestEnv(t)

	resp := postJobFile(t, env, &api.Request{
		Command:       api.CmdUploadFiles,
		Authenticator: "alice-secret",
		PhysNames:     []string{"input_a", "input_b"},
	}, map[string]string{
		"input_a": "content a",
		"input_b": "content b",
	})
	require.Nil(t, resp.Error)
	assert.True(t, resp.Success)
	assert.True(t, env.server.store.Present("input_a"))
	assert.True(t, env.server.store.Present("input_b"))

	resp = postJobFile(t, env, &api.Request{
		Command:       api.CmdQueryFiles,
		Authenticator: "alice-secret",
		PhysNames:     []string{"input_a", "input_missing", "input_b"},
	}, nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, []int{1}, resp.AbsentFiles)
}

func TestJobFile_UploadVerifiesContentAddress(t *testing.T) {
	env := newTestEnv(t)

	// A content-addressed name whose digest does not match the payload is
	// rejected.
	resp := postJobFile(t, env, &api.Request{
		Command:       api.CmdUploadFiles,
		Authenticator: "alice-secret",
		PhysNames:     []string{"jf_00000000000000000000000000000000"},
	}, map[string]string{
		"jf_00000000000000000000000000000000": "mismatching content",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.CodeStagingError, resp.Error.Code)
}

func TestJobFile_BadAuthenticator(t *testing.T) {
	env := newTestEnv(t)
	resp := postJobFile(t, env, &api.Request{
		Command:       api.CmdQueryFiles,
		Authenticator: "wrong",
		PhysNames:     []string{"x"},
	}, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.CodeAuthError, resp.Error.Code)
}
