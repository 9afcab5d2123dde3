// ABOUTME: Runner for retrieval benchmarks - executes scenarios and collects results
// ABOUTME: Each scenario gets a fresh corpus and in-memory cache; metrics come from MetricsCalculator
package ragas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/logging"
	"github.com/harper/docrag/internal/rag"
)

// BenchmarkRunner executes benchmark scenarios against the retrieval service
type BenchmarkRunner struct {
	cfg     *config.Config
	metrics *MetricsCalculator
	verbose bool
	out     io.Writer
	logger  *log.Logger
}

// NewBenchmarkRunner creates a runner. Every scenario uses a copy of cfg with
// its own corpus directory, an in-memory cache and no persisted index.
func NewBenchmarkRunner(cfg *config.Config, verbose bool, out io.Writer, logger *log.Logger) (*BenchmarkRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = io.Discard
	}
	return &BenchmarkRunner{
		cfg:     cfg,
		metrics: NewMetricsCalculator(),
		verbose: verbose,
		out:     out,
		logger:  logging.Component(logger, "benchmark"),
	}, nil
}

// RunTest executes a single benchmark scenario
func (r *BenchmarkRunner) RunTest(ctx context.Context, scenario TestScenario) (TestResult, error) {
	if r.verbose {
		fmt.Fprintf(r.out, "\n========================================\n")
		fmt.Fprintf(r.out, "RUNNING: %s\n", scenario.Name)
		fmt.Fprintf(r.out, "========================================\n")
		fmt.Fprintf(r.out, "Description: %s\n\n", scenario.Description)
	}

	tmpDir, err := os.MkdirTemp("", "docrag_bench_"+scenario.ID+"_")
	if err != nil {
		return TestResult{}, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	corpus := filepath.Join(tmpDir, "corpus")
	if err := writeDocuments(corpus, scenario.Documents); err != nil {
		return TestResult{}, err
	}

	svc, err := rag.Open(ctx, r.scenarioConfig(scenario, corpus), r.logger)
	if err != nil {
		return TestResult{}, fmt.Errorf("failed to open service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	if _, err := svc.Ingest(ctx, corpus); err != nil {
		return TestResult{}, fmt.Errorf("initial ingest failed: %w", err)
	}

	if len(scenario.Updates) > 0 {
		if err := writeDocuments(corpus, scenario.Updates); err != nil {
			return TestResult{}, err
		}
		report, err := svc.IngestWithOptions(ctx, corpus, rag.IngestOptions{Prune: true})
		if err != nil {
			return TestResult{}, fmt.Errorf("update ingest failed: %w", err)
		}
		if r.verbose {
			fmt.Fprintf(r.out, "[Update] re-embedded %d document(s), pruned %d\n", report.Fresh, len(report.Pruned))
		}
	}

	k := scenario.K
	if k <= 0 {
		k = r.cfg.TopK
	}

	questions := make([]QuestionResult, 0, len(scenario.Questions))
	for i, q := range scenario.Questions {
		qr, err := r.runQuestion(ctx, svc, q, k)
		if err != nil {
			return TestResult{}, fmt.Errorf("question %d failed: %w", i+1, err)
		}
		if r.verbose {
			fmt.Fprintf(r.out, "[Q%d] %s\n  retrieved: %v  rr=%.2f recall=%.2f\n",
				i+1, q.Query, qr.RetrievedDocs, qr.ReciprocalRank, qr.ContextRecall)
		}
		questions = append(questions, qr)
	}

	return r.metrics.Summarize(scenario, questions), nil
}

func (r *BenchmarkRunner) runQuestion(ctx context.Context, svc *rag.Service, q Question, k int) (QuestionResult, error) {
	results, err := svc.Query(ctx, q.Query, k)
	if err != nil {
		return QuestionResult{}, err
	}

	docs := make([]string, len(results))
	texts := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.DocName
		texts[i] = res.Text
	}

	var answer *string
	needsAnswer := len(q.ExpectedInResponse) > 0 || len(q.ForbiddenInResponse) > 0
	if needsAnswer && svc.HasGenerator() {
		a, err := svc.Answer(ctx, q.Query, k)
		if err != nil {
			return QuestionResult{}, err
		}
		answer = &a.Generation.Text
	}

	return r.metrics.EvaluateQuestion(q, docs, texts, answer), nil
}

// scenarioConfig isolates a scenario from the configured cache and index
func (r *BenchmarkRunner) scenarioConfig(scenario TestScenario, corpus string) *config.Config {
	cfg := *r.cfg
	cfg.CorpusDir = corpus
	cfg.CachePath = rag.MemoryCachePath
	cfg.IndexPath = ""
	cfg.PruneMissing = false
	if scenario.ChunkSizeTokens > 0 {
		cfg.ChunkSizeTokens = scenario.ChunkSizeTokens
		cfg.ChunkOverlapTokens = min(cfg.ChunkOverlapTokens, scenario.ChunkSizeTokens/4)
	}
	return &cfg
}

// writeDocuments writes docs into dir; an empty body removes the file
func writeDocuments(dir string, docs map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create corpus: %w", err)
	}
	for name, body := range docs {
		path := filepath.Join(dir, filepath.Base(name))
		if body == "" {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
			continue
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

// RunAllTests executes every scenario in order
func (r *BenchmarkRunner) RunAllTests(ctx context.Context, scenarios []TestScenario) ([]TestResult, error) {
	results := make([]TestResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		result, err := r.RunTest(ctx, scenario)
		if err != nil {
			return nil, fmt.Errorf("test %s failed: %w", scenario.ID, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// ExportResults exports test results to JSON
func (r *BenchmarkRunner) ExportResults(results []TestResult, outputPath string) error {
	passed := 0
	for _, result := range results {
		if result.Status == "PASS" {
			passed++
		}
	}

	summary := map[string]interface{}{
		"timestamp":       time.Now().Format(time.RFC3339),
		"embedding_model": r.cfg.EmbeddingModel,
		"total_tests":     len(results),
		"passed":          passed,
		"failed":          len(results) - passed,
		"results":         results,
	}

	jsonData, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	fmt.Fprintf(r.out, "✓ Results exported to: %s\n", outputPath)
	return nil
}
