package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/fairmeter/internal/model"
)

// Assessor runs one assessment
type Assessor interface {
	Assess(ctx context.Context, req model.RunRequest) (*model.Report, error)
}

// AssessJob assesses one identifier
type AssessJob struct {
	Request  model.RunRequest
	Assessor Assessor
}

// Execute runs the assessment
func (j *AssessJob) Execute(ctx context.Context) Result {
	report, err := j.Assessor.Assess(ctx, j.Request)
	return &AssessResult{
		Identifier: j.Request.ObjectIdentifier,
		Report:     report,
		Error:      err,
	}
}

// AssessResult is the outcome of one batch entry
type AssessResult struct {
	Identifier string
	Report     *model.Report
	Error      error
}

// GetError returns the assessment error
func (r *AssessResult) GetError() error {
	return r.Error
}

// BatchProcessor assesses many identifiers concurrently
type BatchProcessor struct {
	assessor    Assessor
	concurrency int
	progress    func()
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(assessor Assessor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		assessor:    assessor,
		concurrency: concurrency,
	}
}

// OnProgress registers a callback invoked once per finished identifier
func (b *BatchProcessor) OnProgress(fn func()) {
	b.progress = fn
}

// Process assesses every identifier with the template request and returns results in input order
func (b *BatchProcessor) Process(ctx context.Context, identifiers []string, template model.RunRequest) []*AssessResult {
	if len(identifiers) == 0 {
		return []*AssessResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	if b.progress != nil {
		pool.OnResult(func(Result) { b.progress() })
	}
	pool.Start()

	for _, id := range identifiers {
		req := template
		req.ObjectIdentifier = id
		pool.Submit(&AssessJob{Request: req, Assessor: b.assessor})
	}

	results := pool.Wait()

	out := make([]*AssessResult, len(results))
	for i, r := range results {
		out[i] = r.(*AssessResult)
	}
	return out
}

// ProcessFile reads identifiers from a file and assesses them
func (b *BatchProcessor) ProcessFile(ctx context.Context, path string, template model.RunRequest) ([]*AssessResult, error) {
	ids, err := ReadIdentifiers(path)
	if err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return b.Process(ctx, ids, template), nil
}

// ReadIdentifiers reads one identifier per line, skipping blanks, comments and duplicates
func ReadIdentifiers(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var ids []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return ids, nil
}
