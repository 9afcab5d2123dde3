// ABOUTME: Command-line runner for the retrieval benchmarks
// ABOUTME: Executes built-in or YAML scenarios and writes JSON results
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/harper/docrag/benchmarks/ragas"
	"github.com/harper/docrag/internal/config"
	"github.com/harper/docrag/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	testID := flag.String("test", "", "Run one scenario by id. If empty, runs all scenarios.")
	scenarioPath := flag.String("scenarios", "", "YAML file with scenarios (default: built-in scenarios)")
	outputPath := flag.String("output", "benchmark_results.json", "Output path for JSON results")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	scenarios := ragas.GetAllTests()
	if *scenarioPath != "" {
		scenarios, err = ragas.LoadScenarios(*scenarioPath)
		if err != nil {
			return err
		}
	}
	if *testID != "" {
		scenario, ok := ragas.FindScenario(scenarios, *testID)
		if !ok {
			ids := make([]string, len(scenarios))
			for i, s := range scenarios {
				ids[i] = s.ID
			}
			return fmt.Errorf("unknown test ID: %s (valid options: %s)", *testID, strings.Join(ids, ", "))
		}
		scenarios = []ragas.TestScenario{scenario}
	}

	fmt.Println("========================================")
	fmt.Println("docrag Retrieval Benchmarks")
	fmt.Println("========================================")
	fmt.Printf("Embedding model: %s\n", cfg.EmbeddingModel)
	if !cfg.HasGenerator() {
		fmt.Println("No generator configured: faithfulness is skipped")
	}
	fmt.Println()

	runner, err := ragas.NewBenchmarkRunner(cfg, *verbose, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("failed to create benchmark runner: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := runner.RunAllTests(ctx, scenarios)
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	fmt.Println("\n========================================")
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println("========================================")

	failed := 0
	for _, result := range results {
		fmt.Printf("\n%s: %s\n", result.TestID, result.TestName)
		fmt.Printf("  Hit Rate:       %.2f\n", result.HitRate)
		fmt.Printf("  MRR:            %.2f\n", result.MRR)
		fmt.Printf("  Context Recall: %.2f\n", result.ContextRecallScore)
		fmt.Printf("  Context Purity: %.2f\n", result.ContextPurityScore)
		if result.AnswersEvaluated > 0 {
			fmt.Printf("  Faithfulness:   %.2f (%d answers)\n", result.FaithfulnessScore, result.AnswersEvaluated)
		}
		fmt.Printf("  Overall:        %.2f\n", result.OverallScore)
		fmt.Printf("  Status:         %s\n", result.Status)

		if result.Status != "PASS" {
			failed++
		}
	}

	fmt.Println("\n========================================")
	fmt.Printf("Total Tests: %d\n", len(results))
	fmt.Printf("Passed: %d\n", len(results)-failed)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Println("========================================")

	if err := runner.ExportResults(results, *outputPath); err != nil {
		return fmt.Errorf("failed to export results: %w", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d benchmark(s) failed", failed)
	}
	return nil
}
