// ABOUTME: Retrieval and answer metrics for the benchmark scenarios
// ABOUTME: Hit rate, reciprocal rank, context recall and purity, and faithfulness against ground truth
package ragas

import (
	"fmt"
	"strings"
)

// Scores at or above passThreshold count as passing
const passThreshold = 0.9

// MetricsCalculator computes benchmark scores from ground truth
type MetricsCalculator struct{}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// CalculateHitRate is 1 when any expected document was retrieved, else 0.
// Questions without expected documents score 1.
func (m *MetricsCalculator) CalculateHitRate(retrievedDocs, expectedDocs []string) float64 {
	if len(expectedDocs) == 0 {
		return 1.0
	}
	for _, doc := range retrievedDocs {
		if contains(expectedDocs, doc) {
			return 1.0
		}
	}
	return 0.0
}

// CalculateReciprocalRank is 1/rank of the first expected document, 0 when none was retrieved
func (m *MetricsCalculator) CalculateReciprocalRank(retrievedDocs, expectedDocs []string) float64 {
	if len(expectedDocs) == 0 {
		return 1.0
	}
	for i, doc := range retrievedDocs {
		if contains(expectedDocs, doc) {
			return 1.0 / float64(i+1)
		}
	}
	return 0.0
}

// CalculateContextRecall computes context recall score (0.0-1.0)
// Context Recall = Was the correct context retrieved?
func (m *MetricsCalculator) CalculateContextRecall(
	retrievedContext []string,
	expectedContextItems []string,
) (float64, string) {
	if len(expectedContextItems) == 0 {
		return 1.0, "No context retrieval required"
	}

	allContext := strings.ToUpper(strings.Join(retrievedContext, " "))

	foundCount := 0
	missingItems := []string{}
	for _, expectedItem := range expectedContextItems {
		if strings.Contains(allContext, strings.ToUpper(expectedItem)) {
			foundCount++
		} else {
			missingItems = append(missingItems, expectedItem)
		}
	}

	recall := float64(foundCount) / float64(len(expectedContextItems))
	if recall == 1.0 {
		return 1.0, "Perfect context recall - all expected items retrieved"
	}

	return recall, fmt.Sprintf(
		"Partial context recall (%.2f) - missing items: %v",
		recall, missingItems,
	)
}

// CalculateContextPurity is the share of forbidden items absent from the
// retrieved context. Stale text surviving an edit lowers it.
func (m *MetricsCalculator) CalculateContextPurity(
	retrievedContext []string,
	forbiddenContextItems []string,
) (float64, string) {
	if len(forbiddenContextItems) == 0 {
		return 1.0, "No forbidden context"
	}

	allContext := strings.ToUpper(strings.Join(retrievedContext, " "))

	found := []string{}
	for _, item := range forbiddenContextItems {
		if strings.Contains(allContext, strings.ToUpper(item)) {
			found = append(found, item)
		}
	}

	if len(found) == 0 {
		return 1.0, "No stale or forbidden context retrieved"
	}
	purity := 1.0 - float64(len(found))/float64(len(forbiddenContextItems))
	return purity, fmt.Sprintf("Forbidden context retrieved: %v", found)
}

// CalculateFaithfulness computes faithfulness score (0.0-1.0)
// Faithfulness = Does the answer contain the ground truth and nothing forbidden?
func (m *MetricsCalculator) CalculateFaithfulness(
	response string,
	expectedInResponse []string,
	forbiddenInResponse []string,
) (float64, string) {
	responseUpper := strings.ToUpper(response)

	missingItems := []string{}
	for _, expected := range expectedInResponse {
		if !strings.Contains(responseUpper, strings.ToUpper(expected)) {
			missingItems = append(missingItems, expected)
		}
	}

	forbiddenFound := []string{}
	for _, forbidden := range forbiddenInResponse {
		if strings.Contains(responseUpper, strings.ToUpper(forbidden)) {
			forbiddenFound = append(forbiddenFound, forbidden)
		}
	}

	switch {
	case len(missingItems) == 0 && len(forbiddenFound) == 0:
		return 1.0, "Perfect faithfulness - response matches expected ground truth"
	case len(missingItems) > 0 && len(forbiddenFound) > 0:
		return 0.0, fmt.Sprintf(
			"Faithfulness failure - missing expected items: %v, forbidden items found: %v",
			missingItems, forbiddenFound,
		)
	case len(missingItems) > 0:
		return 0.5, fmt.Sprintf("Partial faithfulness - missing expected items: %v", missingItems)
	default:
		return 0.5, fmt.Sprintf("Partial faithfulness - forbidden items found: %v", forbiddenFound)
	}
}

// EvaluateQuestion scores one question. answer is nil when no generator ran.
func (m *MetricsCalculator) EvaluateQuestion(
	question Question,
	retrievedDocs []string,
	retrievedContext []string,
	answer *string,
) QuestionResult {
	recall, recallDetail := m.CalculateContextRecall(retrievedContext, question.ExpectedContextItems)
	purity, purityDetail := m.CalculateContextPurity(retrievedContext, question.ForbiddenContextItems)

	result := QuestionResult{
		Query:          question.Query,
		RetrievedDocs:  retrievedDocs,
		HitRate:        m.CalculateHitRate(retrievedDocs, question.ExpectedDocs),
		ReciprocalRank: m.CalculateReciprocalRank(retrievedDocs, question.ExpectedDocs),
		ContextRecall:  recall,
		ContextPurity:  purity,
		Details: map[string]interface{}{
			"recall_detail": recallDetail,
			"purity_detail": purityDetail,
			"context_items": len(retrievedContext),
		},
	}

	if answer != nil {
		faithfulness, detail := m.CalculateFaithfulness(*answer,
			question.ExpectedInResponse, question.ForbiddenInResponse)
		result.Faithfulness = &faithfulness
		result.Details["faithfulness_detail"] = detail
		result.Details["final_response"] = truncate(*answer, 200)
	}

	return result
}

// Summarize averages question results into a scenario result
func (m *MetricsCalculator) Summarize(scenario TestScenario, questions []QuestionResult) TestResult {
	result := TestResult{
		TestID:    scenario.ID,
		TestName:  scenario.Name,
		Questions: questions,
		Status:    "FAIL",
	}
	if len(questions) == 0 {
		result.ErrorMessage = "scenario has no questions"
		return result
	}

	var faithfulnessSum float64
	for _, q := range questions {
		result.HitRate += q.HitRate
		result.MRR += q.ReciprocalRank
		result.ContextRecallScore += q.ContextRecall
		result.ContextPurityScore += q.ContextPurity
		if q.Faithfulness != nil {
			faithfulnessSum += *q.Faithfulness
			result.AnswersEvaluated++
		}
	}
	n := float64(len(questions))
	result.HitRate /= n
	result.MRR /= n
	result.ContextRecallScore /= n
	result.ContextPurityScore /= n

	parts := []float64{result.HitRate, result.MRR, result.ContextRecallScore, result.ContextPurityScore}
	if result.AnswersEvaluated > 0 {
		result.FaithfulnessScore = faithfulnessSum / float64(result.AnswersEvaluated)
		parts = append(parts, result.FaithfulnessScore)
	}
	for _, p := range parts {
		result.OverallScore += p
	}
	result.OverallScore /= float64(len(parts))

	passed := result.HitRate >= passThreshold &&
		result.ContextRecallScore >= passThreshold &&
		result.ContextPurityScore == 1.0
	if result.AnswersEvaluated > 0 {
		passed = passed && result.FaithfulnessScore >= passThreshold
	}
	if passed {
		result.Status = "PASS"
	}

	return result
}

func contains(items []string, item string) bool {
	for _, s := range items {
		if s == item {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
