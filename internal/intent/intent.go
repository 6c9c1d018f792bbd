// Package intent implements intent detection (spec §4.1 step 4): an
// embedding-based classifier against a labeled exemplar bank when an
// embedder is available, falling back to LLM-based classification with
// the Lite model, falling back further to keyword heuristics. Grounded on
// the teacher's internal/guardrails tiered-evaluator idiom (ordered
// checks, first decisive wins) generalized from content moderation to
// intent classification.
package intent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// Exemplar is one labeled training example in the intent exemplar bank.
type Exemplar struct {
	Intent models.Intent
	Text   string
	Vector []float64
}

// Result is the {intent, read_only} tuple the spec requires.
type Result struct {
	Intent     models.Intent
	ReadOnly   bool
	Confidence float64
	Method     string // "embedding"|"llm"|"keyword"
}

var readOnlyIntents = map[models.Intent]bool{
	models.IntentChat:       true,
	models.IntentRecite:     true,
	models.IntentFileRead:   true,
	models.IntentSearch:     true,
	models.IntentIntrospect: true,
	models.IntentReflection: true,
	models.IntentOther:      true,
}

func readOnly(i models.Intent) bool { return readOnlyIntents[i] }

// EmbeddingClassifier scores a query embedding against the exemplar bank
// using cosine similarity, averaging the topK highest-similarity
// exemplars per intent label (spec: "top-k averaging per intent").
type EmbeddingClassifier struct {
	Exemplars  []Exemplar
	TopK       int
	Threshold  float64
}

// Classify returns the best-scoring intent, or ok=false if no intent's
// averaged score clears Threshold.
func (c *EmbeddingClassifier) Classify(queryVec []float64) (Result, bool) {
	byIntent := make(map[models.Intent][]float64)
	for _, ex := range c.Exemplars {
		byIntent[ex.Intent] = append(byIntent[ex.Intent], cosine(queryVec, ex.Vector))
	}

	var best models.Intent
	bestScore := -1.0
	for in, scores := range byIntent {
		sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
		k := c.TopK
		if k > len(scores) {
			k = len(scores)
		}
		var sum float64
		for i := 0; i < k; i++ {
			sum += scores[i]
		}
		avg := sum / float64(k)
		if avg > bestScore {
			bestScore = avg
			best = in
		}
	}
	if bestScore < c.Threshold {
		return Result{}, false
	}
	return Result{Intent: best, ReadOnly: readOnly(best), Confidence: bestScore, Method: "embedding"}, true
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ChatCompleter is the narrow dependency intent detection needs from the
// model pool for its LLM-classification fallback.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, role models.Role, req *models.RouteRequest) (*models.RouteResponse, error)
}

// ClassifyWithLLM asks the Lite model to emit one intent label.
func ClassifyWithLLM(ctx context.Context, pool ChatCompleter, prompt string) (Result, error) {
	sys := fmt.Sprintf("Classify the user message into exactly one of: %s. Respond with only the label.", strings.Join(intentLabels(), ", "))
	resp, err := pool.ChatCompletion(ctx, models.RoleLite, &models.RouteRequest{
		Messages: []models.ChatMessage{
			{Role: "system", Content: sys},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		return Result{}, fmt.Errorf("llm intent classification: %w", err)
	}
	in := matchIntentLabel(resp.Content)
	return Result{Intent: in, ReadOnly: readOnly(in), Confidence: 0.5, Method: "llm"}, nil
}

func intentLabels() []string {
	return []string{
		string(models.IntentChat), string(models.IntentRecite), string(models.IntentFileRead),
		string(models.IntentFileWrite), string(models.IntentShell), string(models.IntentSearch),
		string(models.IntentKnowledgeSave), string(models.IntentKnowledgeUpdate),
		string(models.IntentIntrospect), string(models.IntentReflection), string(models.IntentOther),
	}
}

func matchIntentLabel(text string) models.Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, label := range intentLabels() {
		if strings.Contains(lower, label) {
			return models.Intent(label)
		}
	}
	return models.IntentOther
}

// keywordRules is the last-resort heuristic fallback, ordered most to
// least specific.
var keywordRules = []struct {
	intent   models.Intent
	keywords []string
}{
	{models.IntentFileWrite, []string{"write to", "save this to", "create a file", "update the file"}},
	{models.IntentFileRead, []string{"read the file", "open the file", "show me the file", "cat "}},
	{models.IntentShell, []string{"run command", "execute shell", "run shell"}},
	{models.IntentKnowledgeSave, []string{"remember this", "save this knowledge", "add to knowledge base"}},
	{models.IntentKnowledgeUpdate, []string{"update the knowledge", "correct the knowledge base"}},
	{models.IntentSearch, []string{"search the web", "look up", "google "}},
	{models.IntentRecite, []string{"recite", "quote the", "repeat the full text"}},
	{models.IntentIntrospect, []string{"check your logs", "introspect", "show recent logs"}},
	{models.IntentReflection, []string{"what do you think about yourself", "how are you feeling"}},
}

// ClassifyWithKeywords is the pure keyword heuristic fallback, used when
// neither an embedder nor the Lite model is available.
func ClassifyWithKeywords(prompt string) Result {
	lower := strings.ToLower(prompt)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return Result{Intent: rule.intent, ReadOnly: readOnly(rule.intent), Confidence: 0.3, Method: "keyword"}
			}
		}
	}
	return Result{Intent: models.IntentChat, ReadOnly: true, Confidence: 0.1, Method: "keyword"}
}

// Detect runs the full preference-ordered pipeline: embedding classifier
// when embedVec is non-nil and classifier has exemplars, else LLM
// classification when pool is non-nil, else keyword heuristics.
func Detect(ctx context.Context, classifier *EmbeddingClassifier, embedVec []float64, pool ChatCompleter, prompt string) (Result, error) {
	if classifier != nil && len(classifier.Exemplars) > 0 && embedVec != nil {
		if res, ok := classifier.Classify(embedVec); ok {
			return res, nil
		}
	}
	if pool != nil {
		res, err := ClassifyWithLLM(ctx, pool, prompt)
		if err == nil {
			return res, nil
		}
	}
	return ClassifyWithKeywords(prompt), nil
}
