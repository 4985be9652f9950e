package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

type rpcHandler func(ctx context.Context, account *repository.Account, req *api.Request) (*api.Response, error)

// Routes builds the HTTP surface: the command-dispatched RPC endpoint, the
// multipart file staging endpoint, and output retrieval.
func (s *SubmitServer) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Post("/submit_rpc", s.HandleSubmitRPC)
	router.Post("/job_file", s.HandleJobFile)
	router.Get("/get_output", s.HandleGetOutput)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return router
}

// HandleSubmitRPC decodes the request envelope, authenticates the caller and
// dispatches on the command name. Failures of any kind are reported in the
// response document's error field; HTTP status stays 200 so clients only
// parse one shape.
func (s *SubmitServer) HandleSubmitRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPCError(w, "", &rpcerrors.ErrMalformedRequest{Message: "unparseable request document"})
		return
	}

	handler, ok := s.rpcHandlers()[req.Command]
	if !ok {
		s.writeRPCError(w, req.Command, &rpcerrors.ErrMalformedRequest{Message: "unknown command " + req.Command})
		return
	}

	account, err := s.accounts.GetByAuthenticator(ctx, req.Authenticator)
	if err != nil {
		s.writeRPCError(w, req.Command, err)
		return
	}

	resp, err := handler(ctx, account, &req)
	if err != nil {
		s.writeRPCError(w, req.Command, err)
		return
	}
	writeRPCResponse(w, resp)
}

func (s *SubmitServer) rpcHandlers() map[string]rpcHandler {
	return map[string]rpcHandler{
		api.CmdEstimateBatch: s.EstimateBatch,
		api.CmdCreateBatch:   s.CreateBatch,
		api.CmdSubmitBatch:   s.SubmitBatch,
		api.CmdQueryBatches:  s.QueryBatches,
		api.CmdQueryBatch:    s.QueryBatch,
		api.CmdQueryJob:      s.QueryJob,
		api.CmdAbortBatch:    s.AbortBatch,
		api.CmdAbortJobs:     s.AbortJobs,
		api.CmdRetireBatch:   s.RetireBatch,
		api.CmdSetExpireTime: s.SetExpireTime,
		api.CmdGetTemplates:  s.GetTemplates,
	}
}

func (s *SubmitServer) writeRPCError(w http.ResponseWriter, command string, err error) {
	code := rpcerrors.CodeFromError(err)
	if code == api.CodeInternalError {
		log.WithError(err).Errorf("request %q failed", command)
	} else {
		log.WithError(err).Debugf("request %q rejected", command)
	}
	s.metrics.RecordRequestError(command)
	writeRPCResponse(w, &api.Response{Error: &api.Error{Code: code, Message: err.Error()}})
}

func writeRPCResponse(w http.ResponseWriter, resp *api.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}
