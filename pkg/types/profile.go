package types

// ComplexityLevel classifies how demanding a request is.
type ComplexityLevel string

const (
	ComplexityTrivial  ComplexityLevel = "trivial"
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
	ComplexityCritical ComplexityLevel = "critical"
)

// RequestCategory is a coarse intent bucket derived from the request text.
type RequestCategory string

const (
	CategoryQuestion  RequestCategory = "question"
	CategoryTask      RequestCategory = "task"
	CategoryEmotional RequestCategory = "emotional"
	CategoryDecision  RequestCategory = "decision"
	CategoryGeneral   RequestCategory = "general"
)

// FeatureVector holds the normalized scalar features behind a complexity
// score. Diagnostic only; routing decisions use the combined score.
type FeatureVector struct {
	Length        float64 `json:"length"`
	WordCount     float64 `json:"word_count"`
	SentenceCount float64 `json:"sentence_count"`
	Interrogative float64 `json:"interrogative"`
	Emotional     float64 `json:"emotional"`
	Decision      float64 `json:"decision"`
	Urgency       float64 `json:"urgency"`
}

// ComplexityProfile is the deterministic summary of one request. It is owned
// by a single routing call and never mutated after creation.
type ComplexityProfile struct {
	Score    float64         `json:"score"` // in [0,1]
	Level    ComplexityLevel `json:"level"`
	Category RequestCategory `json:"category"`
	Urgent   bool            `json:"urgent"`
	Features FeatureVector   `json:"features"`
}
