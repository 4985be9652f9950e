package server

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/volgrid/gridsubmit/internal/common/rpcerrors"
	"github.com/volgrid/gridsubmit/internal/gridsubmit/repository"
	"github.com/volgrid/gridsubmit/pkg/api"
)

func parseTemplate(doc string) (*api.JobTemplate, error) {
	if doc == "" {
		return nil, nil
	}
	var template api.JobTemplate
	if err := json.Unmarshal([]byte(doc), &template); err != nil {
		return nil, errors.Wrap(err, "unparseable template document")
	}
	return &template, nil
}

// loadTemplateFile reads a batch-supplied template filename from the
// configured template directory. Names are restricted to the directory
// itself.
func (s *SubmitServer) loadTemplateFile(filename string) (*api.JobTemplate, error) {
	if s.templateDir == "" || filepath.Base(filename) != filename {
		return nil, &rpcerrors.ErrNotFound{Type: "template", Value: filename}
	}
	doc, err := os.ReadFile(filepath.Join(s.templateDir, filename))
	if err != nil {
		return nil, &rpcerrors.ErrNotFound{Type: "template", Value: filename}
	}
	return parseTemplate(string(doc))
}

// resolveInputTemplate picks the input template for one job: per-job inline
// override, then per-batch override (inline or by filename), then the app
// default. Nil when none applies; jobs are then free-form.
func (s *SubmitServer) resolveInputTemplate(
	batch *api.BatchDescription,
	job *api.JobDescription,
	app *repository.App,
) (*api.JobTemplate, error) {
	if job.InputTemplate != nil {
		return job.InputTemplate, nil
	}
	if batch.InputTemplate != nil {
		return batch.InputTemplate, nil
	}
	if batch.InputTemplateFilename != "" {
		return s.loadTemplateFile(batch.InputTemplateFilename)
	}
	return parseTemplate(app.InputTemplate)
}

func (s *SubmitServer) resolveOutputTemplate(app *repository.App) (*api.JobTemplate, error) {
	return parseTemplate(app.OutputTemplate)
}

// validateInputFiles enforces the template's file count: every job must
// supply exactly the expected number of input files.
func validateInputFiles(jobName string, template *api.JobTemplate, inputs []api.InputFile) error {
	if template == nil {
		return nil
	}
	if len(inputs) != len(template.Files) {
		return &rpcerrors.ErrTemplateMismatch{
			Job:      jobName,
			Expected: len(template.Files),
			Got:      len(inputs),
		}
	}
	return nil
}
