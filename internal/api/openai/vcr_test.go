package openai

import (
	"errors"
	"net/http"
	"testing"

	"github.com/tjfontaine/aiwire/internal/domain"
	"github.com/tjfontaine/aiwire/internal/model"
	"github.com/tjfontaine/aiwire/internal/testutil"
)

func TestRecordedModels(t *testing.T) {
	r, stop := testutil.NewVCRRecorder(t, "models")
	defer stop()

	c := NewClient("sk-test",
		WithHTTPClient(testutil.VCRHTTPClient(r)),
		WithLogger(quietLogger()),
	)
	ctx := testContext(t)

	list, err := c.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	models := model.Items[*model.Model](list)
	if len(models) != 2 || models[0].ID != "gpt-4o-mini" || models[1].OwnedBy != "openai-internal" {
		t.Errorf("models = %+v", models)
	}
	// An element of an unmodelled object type is isolated, not fatal.
	if len(list.Unrecognized) != 1 || list.Unrecognized[0].Index != 2 {
		t.Fatalf("unrecognized = %+v", list.Unrecognized)
	}
	if !errors.Is(list.Unrecognized[0].Err, domain.ErrUnknownVariant) {
		t.Errorf("unrecognized error = %v, want unknown variant", list.Unrecognized[0].Err)
	}

	_, err = c.RetrieveModel(ctx, "gpt-5-nonexistent")
	var ce *domain.ClientError
	if !errors.As(err, &ce) || ce.Kind != domain.KindRemote {
		t.Fatalf("RetrieveModel() error = %v, want remote", err)
	}
	if ce.StatusCode != http.StatusNotFound || ce.Remote.Category != domain.ErrorTypeNotFound {
		t.Errorf("remote = %+v", ce.Remote)
	}
	if ce.Remote.WireCode == nil || *ce.Remote.WireCode != "model_not_found" {
		t.Errorf("code = %v, want model_not_found", ce.Remote.WireCode)
	}
}
