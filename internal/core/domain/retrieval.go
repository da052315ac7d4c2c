package domain

// QueryEmbedding carries the dense and sparse representations of one query.
// Computed once per request and shared read-only across lanes.
type QueryEmbedding struct {
	Dense  []float32
	Sparse map[uint32]float32
}

// YearRange bounds the designated numeric range field of a collection.
type YearRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// SearchFilter is the structured filter set accepted by the store.
// Lanes may strip keys that do not apply to their collection schema.
type SearchFilter struct {
	YearRange *YearRange          `json:"year_range,omitempty"`
	Match     map[string]string   `json:"match,omitempty"`
	MatchAny  map[string][]string `json:"match_any,omitempty"`
}

// Clone returns a deep copy so per-lane filter adjustments never leak
// into sibling lanes.
func (f SearchFilter) Clone() SearchFilter {
	out := SearchFilter{}
	if f.YearRange != nil {
		yr := *f.YearRange
		out.YearRange = &yr
	}
	if len(f.Match) > 0 {
		out.Match = make(map[string]string, len(f.Match))
		for k, v := range f.Match {
			out.Match[k] = v
		}
	}
	if len(f.MatchAny) > 0 {
		out.MatchAny = make(map[string][]string, len(f.MatchAny))
		for k, v := range f.MatchAny {
			vals := make([]string, len(v))
			copy(vals, v)
			out.MatchAny[k] = vals
		}
	}
	return out
}

// Candidate is one retrieval hit. Ephemeral, created per query.
// Embedding is present only when the store returns stored vectors;
// Text is required for cross-encoder scoring.
type Candidate struct {
	ID        string         `json:"id"`
	Score     float64        `json:"score"`
	Payload   map[string]any `json:"payload"`
	Embedding []float32      `json:"-"`
	Text      string         `json:"text,omitempty"`
}

// RankedCandidate is a Candidate after precision rescoring.
type RankedCandidate struct {
	Candidate
	BaseScore    float64 `json:"base_score"`
	RecencyScore float64 `json:"recency_score"`
	FinalScore   float64 `json:"final_score"`
	Year         int     `json:"year"`
}

// Confidence classifies how trustworthy a lane's top results are.
// Ordering: NONE < LOW < MEDIUM < HIGH.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceLow:
		return "LOW"
	default:
		return "NONE"
	}
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// MinConfidence returns the weakest level among the inputs,
// ConfidenceNone when the list is empty.
func MinConfidence(levels ...Confidence) Confidence {
	if len(levels) == 0 {
		return ConfidenceNone
	}
	min := levels[0]
	for _, l := range levels[1:] {
		if l < min {
			min = l
		}
	}
	return min
}

// LaneResult is the deduplicated, score-sorted outcome of one lane.
type LaneResult struct {
	Results       []RankedCandidate `json:"results"`
	Confidence    Confidence        `json:"confidence"`
	Message       string            `json:"message"`
	TopScore      float64           `json:"top_score"`
	ScoreVariance float64           `json:"score_variance"`
}

// TriadResult aggregates all lanes for one query.
type TriadResult struct {
	Lanes             map[string]LaneResult `json:"lanes"`
	OverallConfidence Confidence            `json:"overall_confidence"`
}
