// Package client is the Go client for the batch submission RPC API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/pkg/api"
)

// ApiConnectionDetails identifies the server and the account on whose behalf
// requests are made.
type ApiConnectionDetails struct {
	Url           string
	Authenticator string
}

type Client struct {
	conn *ApiConnectionDetails
	http *http.Client
}

func New(conn *ApiConnectionDetails) *Client {
	return &Client{
		conn: conn,
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIError is a failure reported by the server in the response envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned error %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, req *api.Request) (*api.Response, error) {
	req.Authenticator = c.conn.Authenticator
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conn.Url+"/submit_rpc", bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer httpResp.Body.Close()
	return decodeResponse(httpResp.Body)
}

func decodeResponse(r io.Reader) (*api.Response, error) {
	var resp api.Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "unparseable server response")
	}
	if resp.Error != nil {
		return nil, &APIError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return &resp, nil
}

func (c *Client) EstimateBatch(ctx context.Context, batch *api.BatchDescription) (float64, error) {
	resp, err := c.do(ctx, &api.Request{Command: api.CmdEstimateBatch, Batch: batch})
	if err != nil {
		return 0, err
	}
	return resp.Seconds, nil
}

func (c *Client) CreateBatch(ctx context.Context, appName string, batchName string, expireTime int64) (int64, error) {
	resp, err := c.do(ctx, &api.Request{
		Command:    api.CmdCreateBatch,
		AppName:    appName,
		BatchName:  batchName,
		ExpireTime: expireTime,
	})
	if err != nil {
		return 0, err
	}
	return resp.BatchID, nil
}

func (c *Client) SubmitBatch(ctx context.Context, batch *api.BatchDescription) (int64, error) {
	resp, err := c.do(ctx, &api.Request{Command: api.CmdSubmitBatch, Batch: batch})
	if err != nil {
		return 0, err
	}
	return resp.BatchID, nil
}

func (c *Client) QueryBatches(ctx context.Context, withCPUTime bool) ([]*api.BatchInfo, error) {
	resp, err := c.do(ctx, &api.Request{Command: api.CmdQueryBatches, GetCPUTime: withCPUTime})
	if err != nil {
		return nil, err
	}
	return resp.Batches, nil
}

func (c *Client) QueryBatch(ctx context.Context, batchID int64, batchName string, withDetails bool) (*api.Response, error) {
	return c.do(ctx, &api.Request{
		Command:       api.CmdQueryBatch,
		BatchID:       batchID,
		BatchName:     batchName,
		GetCPUTime:    withDetails,
		GetJobDetails: withDetails,
	})
}

func (c *Client) QueryJob(ctx context.Context, jobID int64) ([]*api.InstanceInfo, error) {
	resp, err := c.do(ctx, &api.Request{Command: api.CmdQueryJob, JobID: jobID})
	if err != nil {
		return nil, err
	}
	return resp.Instances, nil
}

func (c *Client) AbortBatch(ctx context.Context, batchID int64, batchName string) error {
	_, err := c.do(ctx, &api.Request{Command: api.CmdAbortBatch, BatchID: batchID, BatchName: batchName})
	return err
}

func (c *Client) AbortJobs(ctx context.Context, jobNames []string) error {
	_, err := c.do(ctx, &api.Request{Command: api.CmdAbortJobs, JobNames: jobNames})
	return err
}

func (c *Client) RetireBatch(ctx context.Context, batchID int64, batchName string) error {
	_, err := c.do(ctx, &api.Request{Command: api.CmdRetireBatch, BatchID: batchID, BatchName: batchName})
	return err
}

func (c *Client) SetExpireTime(ctx context.Context, batchID int64, expireTime int64) error {
	_, err := c.do(ctx, &api.Request{Command: api.CmdSetExpireTime, BatchID: batchID, ExpireTime: expireTime})
	return err
}

func (c *Client) GetTemplates(ctx context.Context, appName string) (*api.Response, error) {
	return c.do(ctx, &api.Request{Command: api.CmdGetTemplates, AppName: appName})
}

// QueryFiles asks which of the named files are already staged; the returned
// indices refer to physNames entries the server does not hold.
func (c *Client) QueryFiles(ctx context.Context, batchID int64, physNames []string, deleteTime int64) ([]int, error) {
	resp, err := c.doMultipart(ctx, &api.Request{
		Command:    api.CmdQueryFiles,
		BatchID:    batchID,
		PhysNames:  physNames,
		DeleteTime: deleteTime,
	}, nil)
	if err != nil {
		return nil, err
	}
	return resp.AbsentFiles, nil
}

// UploadFiles stages content under the given physical names; files[i]
// supplies the content for physNames[i].
func (c *Client) UploadFiles(ctx context.Context, batchID int64, physNames []string, files []io.Reader, deleteTime int64) error {
	_, err := c.doMultipart(ctx, &api.Request{
		Command:    api.CmdUploadFiles,
		BatchID:    batchID,
		PhysNames:  physNames,
		DeleteTime: deleteTime,
	}, files)
	return err
}

func (c *Client) doMultipart(ctx context.Context, req *api.Request, files []io.Reader) (*api.Response, error) {
	req.Authenticator = c.conn.Authenticator
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	requestPart, err := mw.CreateFormField("request")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := json.NewEncoder(requestPart).Encode(req); err != nil {
		return nil, errors.WithStack(err)
	}
	for i, file := range files {
		filePart, err := mw.CreateFormFile("file", req.PhysNames[i])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if _, err := io.Copy(filePart, file); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.WithStack(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conn.Url+"/job_file", &body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer httpResp.Body.Close()
	return decodeResponse(httpResp.Body)
}
