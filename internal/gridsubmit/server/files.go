package server

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

// HandleJobFile implements the file staging endpoint. The body is multipart:
// the first part, named "request", carries the JSON request document; for
// upload_files the file parts follow in the order of the request's phys_name
// list. Streaming the parts straight into the store keeps memory flat for
// arbitrarily large uploads.
func (s *SubmitServer) HandleJobFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp, err := s.handleJobFile(ctx, r)
	if err != nil {
		s.writeRPCError(w, "", err)
		return
	}
	writeRPCResponse(w, resp)
}

func (s *SubmitServer) handleJobFile(ctx context.Context, r *http.Request) (*api.Response, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "body must be multipart/form-data"}
	}
	part, err := mr.NextPart()
	if err != nil || part.FormName() != "request" {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "first part must be the request document"}
	}
	var req api.Request
	if err := json.NewDecoder(part).Decode(&req); err != nil {
		return nil, &rpcerrors.ErrMalformedRequest{Message: "unparseable request document"}
	}
	account, err := s.accounts.GetByAuthenticator(ctx, req.Authenticator)
	if err != nil {
		return nil, err
	}

	switch req.Command {
	case api.CmdQueryFiles:
		return s.queryFiles(ctx, account, &req)
	case api.CmdUploadFiles:
		return s.uploadFiles(ctx, account, &req, mr)
	default:
		return nil, &rpcerrors.ErrMalformedRequest{Message: "command must be query_files or upload_files"}
	}
}

// queryFiles reports which of the named files the server does not hold, so a
// client can skip re-uploading content that is already staged. Files that are
// present are re-pinned: associated with the batch and their deletion time
// raised to the request's, so a new batch can rely on files staged for an
// earlier one.
func (s *SubmitServer) queryFiles(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error) {
	if err := s.requireBatchOwnerIfSet(ctx, account, req.BatchID); err != nil {
		return nil, err
	}
	recorded, err := s.files.Present(ctx, req.PhysNames)
	if err != nil {
		return nil, err
	}
	absent := make([]int, 0)
	for i, physName := range req.PhysNames {
		if !recorded[physName] || !s.store.Present(physName) {
			absent = append(absent, i)
			continue
		}
		if req.DeleteTime > 0 {
			record, err := s.files.Get(ctx, physName)
			if err != nil {
				return nil, err
			}
			record.DeleteTime = req.DeleteTime
			if err := s.files.Upsert(ctx, record); err != nil {
				return nil, err
			}
		}
		if req.BatchID != 0 {
			if err := s.files.Associate(ctx, req.BatchID, physName); err != nil {
				return nil, err
			}
		}
	}
	return &api.Response{Success: true, AbsentFiles: absent}, nil
}

// uploadFiles stages each file part under its declared physical name. Names
// carrying the content-address prefix have their digest verified on the way
// in; staging is idempotent, so re-uploading an existing file succeeds as
// long as the content matches.
func (s *SubmitServer) uploadFiles(ctx context.Context, account *repository.Account, req *api.Request, mr *multipart.Reader) (*api.Response, error) {
	if err := s.requireBatchOwnerIfSet(ctx, account, req.BatchID); err != nil {
		return nil, err
	}
	now := s.clock.Now().Unix()
	for _, physName := range req.PhysNames {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, &rpcerrors.ErrMalformedRequest{
				Message: "fewer file parts than phys_name entries",
			}
		}
		if err != nil {
			return nil, &rpcerrors.ErrStaging{PhysName: physName, Cause: err}
		}
		declaredMD5 := ""
		if rest := strings.TrimPrefix(physName, "jf_"); rest != physName {
			declaredMD5 = rest
		}
		staged, err := s.store.StageNamed(part, physName, declaredMD5)
		_ = part.Close()
		if err != nil {
			return nil, err
		}
		s.metrics.RecordBytesStaged(staged.Nbytes)
		err = s.files.Upsert(ctx, &repository.FileRecord{
			PhysName:   staged.PhysName,
			MD5:        staged.MD5,
			Nbytes:     staged.Nbytes,
			CreateTime: now,
			DeleteTime: req.DeleteTime,
		})
		if err != nil {
			return nil, err
		}
		if req.BatchID != 0 {
			if err := s.files.Associate(ctx, req.BatchID, staged.PhysName); err != nil {
				return nil, err
			}
		}
	}
	return &api.Response{Success: true}, nil
}

func (s *SubmitServer) requireBatchOwnerIfSet(ctx context.Context, account *repository.Account, batchID int64) error {
	if batchID == 0 {
		return nil
	}
	batch, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return err
	}
	return requireOwner(batch, account)
}
