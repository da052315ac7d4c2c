package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// KeyExtractor derives a logical-document grouping key from a candidate
// payload. Extractors are tried in priority order; the first non-empty
// result wins.
type KeyExtractor interface {
	TryExtract(payload map[string]any) (string, bool)
}

// DefaultKeyChain is the production extractor order: explicit parent
// document id, then normalized decision identifier, then law article,
// then the raw candidate id as last resort.
func DefaultKeyChain() []KeyExtractor {
	return []KeyExtractor{
		parentDocExtractor{},
		decisionIDExtractor{},
		lawArticleExtractor{},
	}
}

// LogicalDocumentKey runs the extractor chain against the candidate's
// payload and falls back to the candidate id. Two candidates with equal
// keys represent the same underlying source document.
func LogicalDocumentKey(chain []KeyExtractor, c Candidate) string {
	for _, ex := range chain {
		if key, ok := ex.TryExtract(c.Payload); ok {
			return key
		}
	}
	return c.ID
}

type parentDocExtractor struct{}

func (parentDocExtractor) TryExtract(payload map[string]any) (string, bool) {
	for _, field := range []string{"doc_id", "parent_doc_id"} {
		if v := payloadString(payload, field); v != "" {
			return "doc:" + v, true
		}
	}
	return "", false
}

type decisionIDExtractor struct{}

func (decisionIDExtractor) TryExtract(payload map[string]any) (string, bool) {
	id := payloadString(payload, "decision_id")
	if id == "" {
		id = payloadString(payload, "_original_id")
	}
	normalized := NormalizeDecisionID(id)
	if normalized == "" {
		return "", false
	}
	return "decision:" + normalized, true
}

type lawArticleExtractor struct{}

func (lawArticleExtractor) TryExtract(payload map[string]any) (string, bool) {
	sr := payloadString(payload, "sr_number")
	if sr == "" {
		return "", false
	}
	return "law:" + sr + "/" + payloadString(payload, "article_number"), true
}

var chunkSuffixRe = regexp.MustCompile(`(?i)\s+chunk\s+\d+.*$`)

// NormalizeDecisionID makes decision identifiers comparable across chunk
// and citation variants: BGE 102 IA 35 == BGE-102-Ia-35_chunk_2.
func NormalizeDecisionID(id string) string {
	if id == "" {
		return ""
	}
	if i := strings.Index(id, "_chunk_"); i >= 0 {
		id = id[:i]
	} else {
		id = chunkSuffixRe.ReplaceAllString(id, "")
	}

	normalized := strings.ToUpper(strings.TrimSpace(id))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	for strings.Contains(normalized, "--") {
		normalized = strings.ReplaceAll(normalized, "--", "-")
	}
	return normalized
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

// PayloadString exposes the tolerant payload accessor to the use-case layer.
func PayloadString(payload map[string]any, key string) string {
	return payloadString(payload, key)
}
