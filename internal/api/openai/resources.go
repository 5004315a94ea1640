package openai

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
)

const assistantsBeta = "assistants=v2"

// ListModels lists the models available to the account.
func (c *Client) ListModels(ctx context.Context) (*model.List, error) {
	return do[*model.List](ctx, c, &request{operation: "models.list", method: http.MethodGet, path: "/models"})
}

// RetrieveModel retrieves a model by ID.
func (c *Client) RetrieveModel(ctx context.Context, id string) (*model.Model, error) {
	return do[*model.Model](ctx, c, &request{
		operation: "models.retrieve",
		method:    http.MethodGet,
		path:      "/models/" + url.PathEscape(id),
	})
}

// UploadFile uploads the file at path for the given purpose. A path that does
// not exist or names a directory fails before any request is made.
func (c *Client) UploadFile(ctx context.Context, path, purpose string) (*model.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewFileError(path, err)
	}
	if info.IsDir() {
		ce := domain.NewFileError(path, nil)
		ce.Message = "is a directory: " + path
		return nil, ce
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewFileError(path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", purpose); err != nil {
		return nil, domain.NewFileError(path, err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, domain.NewFileError(path, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, domain.NewFileError(path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, domain.NewFileError(path, err)
	}

	return do[*model.File](ctx, c, &request{
		operation:   "files.upload",
		method:      http.MethodPost,
		path:        "/files",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	})
}

// ListFiles lists uploaded files. opts may be nil.
func (c *Client) ListFiles(ctx context.Context, opts *ListOptions) (*model.List, error) {
	return do[*model.List](ctx, c, &request{
		operation: "files.list",
		method:    http.MethodGet,
		path:      "/files" + opts.query(),
	})
}

// RetrieveFile retrieves file metadata by ID.
func (c *Client) RetrieveFile(ctx context.Context, id string) (*model.File, error) {
	return do[*model.File](ctx, c, &request{
		operation: "files.retrieve",
		method:    http.MethodGet,
		path:      "/files/" + url.PathEscape(id),
	})
}

// CreateFineTuningJob starts a fine-tuning job.
func (c *Client) CreateFineTuningJob(ctx context.Context, req *FineTuningJobRequest) (*model.FineTuningJob, error) {
	r, err := jsonRequest("fine_tuning.create", http.MethodPost, "/fine_tuning/jobs", req)
	if err != nil {
		return nil, err
	}
	return do[*model.FineTuningJob](ctx, c, r)
}

// RetrieveFineTuningJob retrieves a fine-tuning job by ID.
func (c *Client) RetrieveFineTuningJob(ctx context.Context, id string) (*model.FineTuningJob, error) {
	return do[*model.FineTuningJob](ctx, c, &request{
		operation: "fine_tuning.retrieve",
		method:    http.MethodGet,
		path:      "/fine_tuning/jobs/" + url.PathEscape(id),
	})
}

// CreateBatch creates a batch over an uploaded input file.
func (c *Client) CreateBatch(ctx context.Context, req *BatchRequest) (*model.Batch, error) {
	r, err := jsonRequest("batches.create", http.MethodPost, "/batches", req)
	if err != nil {
		return nil, err
	}
	return do[*model.Batch](ctx, c, r)
}

// RetrieveBatch retrieves a batch by ID.
func (c *Client) RetrieveBatch(ctx context.Context, id string) (*model.Batch, error) {
	return do[*model.Batch](ctx, c, &request{
		operation: "batches.retrieve",
		method:    http.MethodGet,
		path:      "/batches/" + url.PathEscape(id),
	})
}

// CreateAssistant creates an assistant.
func (c *Client) CreateAssistant(ctx context.Context, req *AssistantRequest) (*model.Assistant, error) {
	r, err := jsonRequest("assistants.create", http.MethodPost, "/assistants", req)
	if err != nil {
		return nil, err
	}
	r.header = http.Header{"Openai-Beta": {assistantsBeta}}
	return do[*model.Assistant](ctx, c, r)
}

// RetrieveAssistant retrieves an assistant by ID.
func (c *Client) RetrieveAssistant(ctx context.Context, id string) (*model.Assistant, error) {
	return do[*model.Assistant](ctx, c, &request{
		operation: "assistants.retrieve",
		method:    http.MethodGet,
		path:      "/assistants/" + url.PathEscape(id),
		header:    http.Header{"Openai-Beta": {assistantsBeta}},
	})
}

func (o *ListOptions) query() string {
	if o == nil {
		return ""
	}
	q := url.Values{}
	if o.After != "" {
		q.Set("after", o.After)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Purpose != "" {
		q.Set("purpose", o.Purpose)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
