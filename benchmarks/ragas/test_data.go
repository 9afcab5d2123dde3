// ABOUTME: Benchmark scenario data structures and the built-in retrieval scenarios
// ABOUTME: Scenarios carry a small corpus, optional edits and questions with ground truth
package ragas

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TestScenario is one benchmark: a corpus, optional edits, and questions
type TestScenario struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Documents maps file names to their content
	Documents map[string]string `yaml:"documents" json:"documents"`

	// Updates are applied after the first ingest, followed by a second
	// ingest with pruning. An empty value deletes the file.
	Updates map[string]string `yaml:"updates,omitempty" json:"updates,omitempty"`

	// K overrides the configured top-k; ChunkSizeTokens the chunk size
	K               int `yaml:"k,omitempty" json:"k,omitempty"`
	ChunkSizeTokens int `yaml:"chunk_size_tokens,omitempty" json:"chunk_size_tokens,omitempty"`

	Questions []Question `yaml:"questions" json:"questions"`
}

// Question is a query with its ground truth
type Question struct {
	Query string `yaml:"query" json:"query"`

	// Retrieval expectations
	ExpectedDocs          []string `yaml:"expected_docs,omitempty" json:"expected_docs,omitempty"`
	ExpectedContextItems  []string `yaml:"expected_context,omitempty" json:"expected_context,omitempty"`
	ForbiddenContextItems []string `yaml:"forbidden_context,omitempty" json:"forbidden_context,omitempty"`

	// Answer expectations, only checked when a generator is configured
	ExpectedInResponse  []string `yaml:"expected_in_response,omitempty" json:"expected_in_response,omitempty"`
	ForbiddenInResponse []string `yaml:"forbidden_in_response,omitempty" json:"forbidden_in_response,omitempty"`
}

// QuestionResult holds the metrics for one question
type QuestionResult struct {
	Query          string                 `json:"query"`
	RetrievedDocs  []string               `json:"retrieved_docs"`
	HitRate        float64                `json:"hit_rate"`
	ReciprocalRank float64                `json:"reciprocal_rank"`
	ContextRecall  float64                `json:"context_recall"`
	ContextPurity  float64                `json:"context_purity"`
	Faithfulness   *float64               `json:"faithfulness,omitempty"`
	Details        map[string]interface{} `json:"details"`
}

// TestResult represents the outcome of a benchmark scenario
type TestResult struct {
	TestID             string           `json:"test_id"`
	TestName           string           `json:"test_name"`
	HitRate            float64          `json:"hit_rate"`
	MRR                float64          `json:"mrr"`
	ContextRecallScore float64          `json:"context_recall"`
	ContextPurityScore float64          `json:"context_purity"`
	FaithfulnessScore  float64          `json:"faithfulness"`
	AnswersEvaluated   int              `json:"answers_evaluated"`
	OverallScore       float64          `json:"overall"`
	Status             string           `json:"status"` // "PASS" or "FAIL"
	Questions          []QuestionResult `json:"questions"`
	ErrorMessage       string           `json:"error,omitempty"`
}

// LoadScenarios reads scenarios from a YAML file holding a list of scenarios
func LoadScenarios(path string) ([]TestScenario, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios: %w", err)
	}

	var scenarios []TestScenario
	if err := yaml.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("failed to parse scenarios %s: %w", path, err)
	}
	for i, s := range scenarios {
		if s.ID == "" {
			return nil, fmt.Errorf("scenario %d has no id", i)
		}
		if len(s.Documents) == 0 || len(s.Questions) == 0 {
			return nil, fmt.Errorf("scenario %s needs documents and questions", s.ID)
		}
	}
	return scenarios, nil
}

// FindScenario returns the scenario with id from scenarios
func FindScenario(scenarios []TestScenario, id string) (TestScenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return TestScenario{}, false
}

// GetKnowledgeBaseTest returns the basic retrieval scenario: each question
// targets one of several small documents.
func GetKnowledgeBaseTest() TestScenario {
	return TestScenario{
		ID:          "kb",
		Name:        "Knowledge Base Lookup",
		Description: "Each question must retrieve the one document that answers it",
		K:           2,
		Documents: map[string]string{
			"channels.md": "Go channels let goroutines communicate. Sending on an unbuffered channel blocks until a receiver is ready.",
			"mutex.md":    "A sync.Mutex protects shared state. Lock and Unlock guard the critical section so only one goroutine touches the data.",
			"sqlite.txt":  "SQLite stores the embedding cache in a single database file. WAL journal mode lets readers continue during writes.",
		},
		Questions: []Question{
			{
				Query:                "How do goroutines communicate over channels?",
				ExpectedDocs:         []string{"channels.md"},
				ExpectedContextItems: []string{"unbuffered channel"},
			},
			{
				Query:                "Which journal mode lets readers continue during writes in SQLite?",
				ExpectedDocs:         []string{"sqlite.txt"},
				ExpectedContextItems: []string{"WAL"},
				ExpectedInResponse:   []string{"WAL"},
			},
			{
				Query:                "What does Lock and Unlock guard?",
				ExpectedDocs:         []string{"mutex.md"},
				ExpectedContextItems: []string{"critical section"},
				ExpectedInResponse:   []string{"critical section"},
			},
		},
	}
}

// GetDocumentUpdateTest returns the stale-content scenario: a document is
// edited after the first ingest and only its new text may be retrieved.
func GetDocumentUpdateTest() TestScenario {
	return TestScenario{
		ID:          "update",
		Name:        "Document Update (Stale Content)",
		Description: "An edited document must replace its cached chunks",
		K:           1,
		Documents: map[string]string{
			"keys.md":   "The weather service API key is ABC123. Keep it out of source control.",
			"deploy.md": "Deployment happens every Friday after the integration tests pass.",
			"old.md":    "This page about the legacy billing system will be removed.",
		},
		Updates: map[string]string{
			"keys.md": "The weather service API key was rotated. The current key is XYZ789. Keep it out of source control.",
			"old.md":  "",
		},
		Questions: []Question{
			{
				Query:                 "What is the weather service API key?",
				ExpectedDocs:          []string{"keys.md"},
				ExpectedContextItems:  []string{"XYZ789"},
				ForbiddenContextItems: []string{"ABC123"},
				ExpectedInResponse:    []string{"XYZ789"},
				ForbiddenInResponse:   []string{"ABC123"},
			},
			{
				Query:                 "What happened to the legacy billing system page?",
				ForbiddenContextItems: []string{"legacy billing"},
			},
		},
	}
}

// GetLongDocumentTest returns the segmentation scenario: answers sit in
// different chunks of one long document.
func GetLongDocumentTest() TestScenario {
	return TestScenario{
		ID:              "long",
		Name:            "Long Document Segmentation",
		Description:     "Questions must land on the right chunk of a multi-chunk document",
		K:               1,
		ChunkSizeTokens: 40,
		Documents: map[string]string{
			"handbook.md": "Office hours: the office opens at eight and closes at six on weekdays.\n\n" +
				"Vacation policy: employees get 25 vacation days per year and may carry five days into the next year.\n\n" +
				"Expense reports: submit receipts within thirty days through the finance portal.\n\n" +
				"Security: badges must be worn at all times and visitors sign in at reception.",
			"menu.txt": "The cafeteria serves soup, salad and sandwiches at lunch.",
		},
		Questions: []Question{
			{
				Query:                "How many vacation days do employees get per year?",
				ExpectedDocs:         []string{"handbook.md"},
				ExpectedContextItems: []string{"25 vacation days"},
				ExpectedInResponse:   []string{"25"},
			},
			{
				Query:                "How are expense reports and receipts submitted to the finance portal?",
				ExpectedDocs:         []string{"handbook.md"},
				ExpectedContextItems: []string{"thirty days"},
			},
			{
				Query:                "What does the cafeteria serve at lunch?",
				ExpectedDocs:         []string{"menu.txt"},
				ExpectedContextItems: []string{"sandwiches"},
			},
		},
	}
}

// GetAllTests returns every built-in scenario
func GetAllTests() []TestScenario {
	return []TestScenario{
		GetKnowledgeBaseTest(),
		GetDocumentUpdateTest(),
		GetLongDocumentTest(),
	}
}
