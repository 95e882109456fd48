package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ppiankov/fairmeter/internal/model"
)

type mockAssessor struct {
	failFor string
}

func (m *mockAssessor) Assess(ctx context.Context, req model.RunRequest) (*model.Report, error) {
	if req.ObjectIdentifier == m.failFor {
		return nil, errors.New("assessment failed")
	}
	return &model.Report{
		MetricVersion: req.MetricVersion,
		Request:       req,
	}, nil
}

func TestBatchProcessor_Process(t *testing.T) {
	processor := NewBatchProcessor(&mockAssessor{failFor: "bad"}, 2)
	var progress int32
	processor.OnProgress(func() { atomic.AddInt32(&progress, 1) })

	ids := []string{"10.5281/zenodo.1", "bad", "https://example.org/ds"}
	results := processor.Process(context.Background(), ids, model.RunRequest{MetricVersion: "0.5"})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, id := range ids {
		if results[i].Identifier != id {
			t.Errorf("result %d: expected %s, got %s", i, id, results[i].Identifier)
		}
	}
	if results[1].Error == nil {
		t.Error("expected error for bad identifier")
	}
	if results[0].Report == nil || results[0].Report.MetricVersion != "0.5" {
		t.Error("expected template request to be applied")
	}
	if progress != 3 {
		t.Errorf("expected 3 progress ticks, got %d", progress)
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockAssessor{}, 2)
	if got := processor.Process(context.Background(), nil, model.RunRequest{}); len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestReadIdentifiers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	content := "# datasets\n10.5281/zenodo.1\n\n  10.5281/zenodo.1  \nhttps://example.org/ds\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ReadIdentifiers(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 identifiers, got %v", ids)
	}
	if ids[0] != "10.5281/zenodo.1" || ids[1] != "https://example.org/ds" {
		t.Errorf("unexpected identifiers %v", ids)
	}
}

func TestReadIdentifiers_Missing(t *testing.T) {
	if _, err := ReadIdentifiers(filepath.Join(t.TempDir(), "none.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
