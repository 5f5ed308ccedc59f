package domain

import "fmt"

// Confidence is the ordered quality tier assigned by the scorer,
// low < medium < high.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func ParseConfidence(s string) (Confidence, error) {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return Confidence(s), nil
	}
	return "", fmt.Errorf("invalid confidence tier %q", s)
}

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets the given minimum tier.
func (c Confidence) AtLeast(min Confidence) bool {
	return c.rank() >= min.rank()
}
