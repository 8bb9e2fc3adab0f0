package image

import "strings"

// Kind is the stabilization bucket a request falls into
type Kind int

const (
	KindGeneric Kind = iota
	KindCriticalUI
	KindSpecialized
	KindCancerSupport
)

// String returns the name used in cache keys, logs and metrics
func (k Kind) String() string {
	switch k {
	case KindCriticalUI:
		return "critical-ui"
	case KindSpecialized:
		return "specialized"
	case KindCancerSupport:
		return "cancer-support"
	default:
		return "generic"
	}
}

// Keyword sets for legacy context tags. Matching is substring based.
var (
	specializedKeywords = []string{
		"military",
		"college",
		"golden-years",
		"adolescent",
		"first-responders",
		"law-enforcement",
		"small-business",
		"chronic-illness",
		"cancer-support",
	}
	criticalUIKeywords = []string{"card", "cover", "portal", "base-card"}
)

// Classification is the outcome of classifying a request
type Classification struct {
	IsCancerSupport      bool `json:"is_cancer_support"`
	IsSpecializedProgram bool `json:"is_specialized_program"`
	IsCriticalUI         bool `json:"is_critical_ui"`
}

// Kind applies precedence: cancer support, then specialized, then critical UI
func (c Classification) Kind() Kind {
	switch {
	case c.IsCancerSupport:
		return KindCancerSupport
	case c.IsSpecializedProgram:
		return KindSpecialized
	case c.IsCriticalUI:
		return KindCriticalUI
	default:
		return KindGeneric
	}
}

// Classify infers a classification from a free-text context tag and the raw path
func Classify(contextTag, rawPath string) Classification {
	hay := strings.ToLower(contextTag + " " + rawPath)

	cancer := strings.Contains(hay, "cancer")
	return Classification{
		IsCancerSupport:      cancer,
		IsSpecializedProgram: cancer || containsAny(hay, specializedKeywords),
		IsCriticalUI:         containsAny(hay, criticalUIKeywords),
	}
}

// ClassifyCategory maps an explicit category to its classification
func ClassifyCategory(c Category) Classification {
	switch {
	case c == CategoryCancerSupport:
		return Classification{IsCancerSupport: true, IsSpecializedProgram: true}
	case c.IsProgram():
		return Classification{IsSpecializedProgram: true}
	case c == CategoryCriticalUI:
		return Classification{IsCriticalUI: true}
	default:
		return Classification{}
	}
}

// classifyRequest prefers the explicit category and falls back to heuristics
func classifyRequest(category Category, contextTag, rawPath string) Classification {
	if category != CategoryUnknown {
		return ClassifyCategory(category)
	}
	return Classify(contextTag, rawPath)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
