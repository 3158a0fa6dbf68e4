package profiler

import (
	"math"
	"strings"

	"github.com/driftlabs/driftroute/internal/config"
	"github.com/driftlabs/driftroute/pkg/types"
)

// Profiler converts a raw request into a ComplexityProfile. Profiling is a
// pure function of the request text and hints: no side effects, no failure
// mode, no randomness. Unknown or empty text maps to trivial.
type Profiler struct {
	weights    config.FeatureWeights
	thresholds config.LevelThresholds

	emotionalTerms []string
	decisionTerms  []string
	urgencyTerms   []string
	taskVerbs      []string
	questionWords  []string
}

// New creates a profiler with the configured weights and level thresholds.
func New(cfg config.ProfilerConfig) *Profiler {
	return &Profiler{
		weights:    cfg.Weights,
		thresholds: cfg.Thresholds,
		emotionalTerms: []string{
			"feel", "feeling", "sad", "happy", "angry", "anxious", "worried",
			"stressed", "frustrated", "excited", "scared", "lonely", "depressed",
			"overwhelmed", "grateful", "upset", "afraid", "nervous",
		},
		decisionTerms: []string{
			"should i", "decide", "decision", "choose", "choice", "option",
			"compare", "versus", "trade-off", "tradeoff", "recommend",
			"which one", "better to", "pros and cons", "evaluate",
		},
		urgencyTerms: []string{
			"urgent", "urgently", "asap", "immediately", "right now",
			"emergency", "critical", "deadline",
		},
		taskVerbs: []string{
			"write", "create", "build", "make", "generate", "draft", "fix",
			"implement", "summarize", "translate", "plan", "schedule", "find",
		},
		questionWords: []string{
			"what", "who", "when", "where", "why", "how", "which",
			"is", "are", "can", "could", "do", "does", "did", "will",
		},
	}
}

// Profile computes the deterministic complexity summary of one request.
func (p *Profiler) Profile(req types.Request) types.ComplexityProfile {
	text := strings.TrimSpace(req.Text)
	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	features := types.FeatureVector{
		Length:        clipFeature(float64(len(text)) / 2000.0),
		WordCount:     clipFeature(float64(len(words)) / 200.0),
		SentenceCount: clipFeature(float64(countSentences(text)) / 20.0),
		Interrogative: clipFeature(float64(strings.Count(text, "?")) / 10.0),
		Emotional:     clipFeature(float64(countTerms(lower, p.emotionalTerms)) / 10.0),
		Decision:      clipFeature(float64(countTerms(lower, p.decisionTerms)) / 10.0),
		Urgency:       p.urgencyFeature(lower, req),
	}

	score := p.combine(features)

	return types.ComplexityProfile{
		Score:    score,
		Level:    p.level(score),
		Category: p.categorize(lower, words, features),
		Urgent:   features.Urgency >= 0.25,
		Features: features,
	}
}

// combine folds the feature vector through the configured weights into a
// score in [0,1]. Features cap at 0.5, so the weighted sum is rescaled by 2
// to use the full range.
func (p *Profiler) combine(f types.FeatureVector) float64 {
	w := p.weights
	totalWeight := w.Length + w.WordCount + w.SentenceCount + w.Interrogative +
		w.Emotional + w.Decision + w.Urgency
	if totalWeight <= 0 {
		return 0
	}

	sum := f.Length*w.Length +
		f.WordCount*w.WordCount +
		f.SentenceCount*w.SentenceCount +
		f.Interrogative*w.Interrogative +
		f.Emotional*w.Emotional +
		f.Decision*w.Decision +
		f.Urgency*w.Urgency

	return math.Min(1, 2*sum/totalWeight)
}

// level maps a score onto the configured complexity bands.
func (p *Profiler) level(score float64) types.ComplexityLevel {
	th := p.thresholds
	switch {
	case score < th.Trivial:
		return types.ComplexityTrivial
	case score < th.Simple:
		return types.ComplexitySimple
	case score < th.Moderate:
		return types.ComplexityModerate
	case score < th.Complex:
		return types.ComplexityComplex
	default:
		return types.ComplexityCritical
	}
}

// urgencyFeature combines the explicit hint with urgency vocabulary. The
// explicit hint can only raise the feature, never lower it.
func (p *Profiler) urgencyFeature(lower string, req types.Request) float64 {
	feature := clipFeature(float64(countTerms(lower, p.urgencyTerms)) / 4.0)

	switch req.Urgency() {
	case "critical":
		feature = math.Max(feature, 0.5)
	case "high":
		feature = math.Max(feature, 0.35)
	}
	return feature
}

// categorize assigns the coarse intent bucket used by the Q-state and the
// static priority table. Checked most-specific first.
func (p *Profiler) categorize(lower string, words []string, f types.FeatureVector) types.RequestCategory {
	if f.Decision > 0 {
		return types.CategoryDecision
	}
	if f.Emotional > 0 {
		return types.CategoryEmotional
	}
	if f.Interrogative > 0 || startsWithAny(words, p.questionWords) {
		return types.CategoryQuestion
	}
	if startsWithAny(words, p.taskVerbs) {
		return types.CategoryTask
	}
	return types.CategoryGeneral
}

// clipFeature bounds a normalized feature to [0, 0.5].
func clipFeature(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 0.5 {
		return 0.5
	}
	return v
}

// countSentences counts terminator-delimited sentences; a non-empty text has
// at least one.
func countSentences(text string) int {
	if text == "" {
		return 0
	}
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}

// countTerms counts how many vocabulary entries occur in the text.
func countTerms(lower string, terms []string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			count++
		}
	}
	return count
}

func startsWithAny(words []string, prefixes []string) bool {
	if len(words) == 0 {
		return false
	}
	first := strings.Trim(words[0], ".,!?")
	for _, p := range prefixes {
		if first == p {
			return true
		}
	}
	return false
}
