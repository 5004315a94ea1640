package mockserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/aiwire/internal/codec"
	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
)

// created is the fixed timestamp stamped on every mock object.
const created int64 = 1700000000

// Models are the models the mock upstream serves.
var Models = []model.Model{
	{ID: "gpt-4o-mini", Object: model.ObjectModel, Created: created, OwnedBy: "system"},
	{ID: "gpt-4o", Object: model.ObjectModel, Created: created, OwnedBy: "system"},
	{ID: "gpt-4o-realtime-preview", Object: model.ObjectModel, Created: created, OwnedBy: "system"},
}

// maxUploadSize bounds uploaded files.
const maxUploadSize = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter, kind, id string) {
	code := kind + "_not_found"
	codec.WriteError(w, &domain.RemoteError{
		Category:   domain.ErrorTypeNotFound,
		Type:       "invalid_request_error",
		WireCode:   &code,
		Message:    "No such " + kind + ": " + id,
		StatusCode: http.StatusNotFound,
	})
}

// missing reports whether id names an object the mock pretends not to have.
func missing(id string) bool {
	return strings.HasPrefix(id, "missing")
}

func writeList[T any](w http.ResponseWriter, items []T) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object":   model.ObjectList,
		"data":     items,
		"has_more": false,
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeList(w, Models)
}

func (s *Server) handleRetrieveModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, m := range Models {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeNotFound(w, "model", id)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeInvalidRequest(w, "expected multipart form: "+err.Error())
		return
	}
	purpose := r.FormValue("purpose")
	if purpose == "" {
		writeInvalidRequest(w, "missing purpose")
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeInvalidRequest(w, "missing file")
		return
	}
	defer f.Close()
	n, _ := io.Copy(io.Discard, f)

	status := "processed"
	writeJSON(w, http.StatusOK, model.File{
		ID:        "file-mock",
		Object:    model.ObjectFile,
		Bytes:     n,
		CreatedAt: created,
		Filename:  header.Filename,
		Purpose:   purpose,
		Status:    &status,
	})
}

func mockFile(id, purpose string) model.File {
	status := "processed"
	return model.File{
		ID:        id,
		Object:    model.ObjectFile,
		Bytes:     1024,
		CreatedAt: created,
		Filename:  id + ".jsonl",
		Purpose:   purpose,
		Status:    &status,
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files := []model.File{mockFile("file-abc", "fine-tune"), mockFile("file-def", "batch")}
	if purpose := r.URL.Query().Get("purpose"); purpose != "" {
		filtered := files[:0]
		for _, f := range files {
			if f.Purpose == purpose {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}
	writeList(w, files)
}

func (s *Server) handleRetrieveFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if missing(id) {
		writeNotFound(w, "file", id)
		return
	}
	writeJSON(w, http.StatusOK, mockFile(id, "fine-tune"))
}

func mockFineTuningJob(id, modelName, trainingFile string) model.FineTuningJob {
	return model.FineTuningJob{
		ID:           id,
		Object:       model.ObjectFineTuningJob,
		Model:        modelName,
		CreatedAt:    created,
		Status:       "queued",
		TrainingFile: trainingFile,
	}
}

func (s *Server) handleCreateFineTuningJob(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Model        string `json:"model"`
		TrainingFile string `json:"training_file"`
	}
	json.Unmarshal(raw, &req)
	if req.TrainingFile == "" {
		writeInvalidRequest(w, "missing training_file")
		return
	}
	writeJSON(w, http.StatusOK, mockFineTuningJob("ftjob-mock", req.Model, req.TrainingFile))
}

func (s *Server) handleRetrieveFineTuningJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if missing(id) {
		writeNotFound(w, "fine_tuning_job", id)
		return
	}
	writeJSON(w, http.StatusOK, mockFineTuningJob(id, "gpt-4o-mini", "file-abc"))
}

func mockBatch(id, inputFile, endpoint, window string) model.Batch {
	return model.Batch{
		ID:               id,
		Object:           model.ObjectBatch,
		Endpoint:         endpoint,
		InputFileID:      inputFile,
		CompletionWindow: window,
		Status:           "validating",
		CreatedAt:        created,
	}
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var req struct {
		InputFileID      string `json:"input_file_id"`
		Endpoint         string `json:"endpoint"`
		CompletionWindow string `json:"completion_window"`
	}
	json.Unmarshal(raw, &req)
	writeJSON(w, http.StatusOK, mockBatch("batch_mock", req.InputFileID, req.Endpoint, req.CompletionWindow))
}

func (s *Server) handleRetrieveBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if missing(id) {
		writeNotFound(w, "batch", id)
		return
	}
	writeJSON(w, http.StatusOK, mockBatch(id, "file-def", "/v1/chat/completions", "24h"))
}

func (s *Server) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var a model.Assistant
	json.Unmarshal(raw, &a)
	a.ID = "asst_mock"
	a.Object = model.ObjectAssistant
	a.CreatedAt = created
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleRetrieveAssistant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if missing(id) {
		writeNotFound(w, "assistant", id)
		return
	}
	name := "Mock Assistant"
	writeJSON(w, http.StatusOK, model.Assistant{
		ID:        id,
		Object:    model.ObjectAssistant,
		CreatedAt: created,
		Name:      &name,
		Model:     "gpt-4o-mini",
		Tools:     []model.AssistantTool{{Type: "code_interpreter"}},
	})
}

func (s *Server) handleCreateRealtimeSession(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	var sess model.Session
	json.Unmarshal(raw, &sess)
	sess.ID = "sess_mock"
	sess.Object = model.ObjectRealtimeSession
	sess.ClientSecret = &model.ClientSecret{Value: "ek_mock", ExpiresAt: created + 60}
	writeJSON(w, http.StatusOK, sess)
}
