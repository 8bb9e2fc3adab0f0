package image

import "strings"

// Category is the caller-declared kind of image being resolved.
// CategoryUnknown asks the resolver to infer it from the context tag.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryGeneric
	CategoryCriticalUI
	CategoryMilitary
	CategoryGoldenYears
	CategoryAdolescent
	CategoryFirstResponders
	CategoryLawEnforcement
	CategorySmallBusiness
	CategoryCollege
	CategoryChronicIllness
	CategoryCancerSupport
)

var categoryNames = map[Category]string{
	CategoryUnknown:         "",
	CategoryGeneric:         "generic",
	CategoryCriticalUI:      "critical-ui",
	CategoryMilitary:        "military",
	CategoryGoldenYears:     "golden-years",
	CategoryAdolescent:      "adolescent",
	CategoryFirstResponders: "first-responders",
	CategoryLawEnforcement:  "law-enforcement",
	CategorySmallBusiness:   "small-business",
	CategoryCollege:         "college",
	CategoryChronicIllness:  "chronic-illness",
	CategoryCancerSupport:   "cancer-support",
}

// String returns the wire name of the category
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// IsProgram reports whether the category is one of the specialized portals
func (c Category) IsProgram() bool {
	return c >= CategoryMilitary && c <= CategoryCancerSupport
}

// ParseCategory converts a wire name to a Category. Empty and unrecognized
// names map to CategoryUnknown; ok is false only for unrecognized names.
func ParseCategory(name string) (Category, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CategoryUnknown, true
	}
	for c, n := range categoryNames {
		if n == name {
			return c, true
		}
	}
	return CategoryUnknown, false
}

// Categories lists every concrete category in declaration order
func Categories() []Category {
	out := make([]Category, 0, len(categoryNames)-1)
	for c := CategoryGeneric; c <= CategoryCancerSupport; c++ {
		out = append(out, c)
	}
	return out
}
