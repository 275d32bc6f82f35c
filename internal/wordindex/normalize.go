package wordindex

import (
	"fmt"
	"strings"
)

// Normalizer is a deterministic transform applied to words before indexing.
type Normalizer func(string) string

// Canonical normalizer names, as reported by NormalizerName.
const (
	NormalizeLower = "lower"
	NormalizeNone  = "none"
)

// Lowercase folds case with unicode rules.
func Lowercase(word string) string {
	return strings.ToLower(word)
}

// Identity leaves words untouched.
func Identity(word string) string {
	return word
}

// NormalizerName maps a configured normalizer name or alias to its canonical
// name.
func NormalizerName(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "lower", "lowercase":
		return NormalizeLower, nil
	case "none", "identity", "":
		return NormalizeNone, nil
	default:
		return "", fmt.Errorf("unknown normalizer %q", name)
	}
}

// ParseNormalizer resolves a configured normalizer name ("lower" or "none").
func ParseNormalizer(name string) (Normalizer, error) {
	canonical, err := NormalizerName(name)
	if err != nil {
		return nil, err
	}
	if canonical == NormalizeLower {
		return Lowercase, nil
	}
	return Identity, nil
}
