package common

import (
	"fmt"

	"github.com/thrive-mt/imageapi/pkg/image"
)

// ResolveRequest asks for a displayable URL. Query parameters bind on GET,
// the JSON body on POST.
type ResolveRequest struct {
	// Path may be empty or "null": the response is then a fallback
	Path     string `json:"path" query:"path"`
	Context  string `json:"context" query:"context" validate:"max=256"`
	Category string `json:"category,omitempty" query:"category"`
	Fallback string `json:"fallback,omitempty" query:"fallback" validate:"max=2048"`
}

// ToImageRequest converts the request, rejecting unknown categories
func (r *ResolveRequest) ToImageRequest() (image.ImageRequest, error) {
	cat, err := ParseCategory(r.Category)
	if err != nil {
		return image.ImageRequest{}, err
	}
	return image.ImageRequest{
		RawPath:          r.Path,
		ContextTag:       r.Context,
		Category:         cat,
		ExplicitFallback: r.Fallback,
	}, nil
}

// ImageErrorRequest reports a failed image load
type ImageErrorRequest struct {
	URL      string `json:"url" validate:"max=2048"`
	Context  string `json:"context" validate:"max=256"`
	Category string `json:"category,omitempty"`
	Fallback string `json:"fallback,omitempty" validate:"max=2048"`
}

// ToImageError converts the request, rejecting unknown categories
func (r *ImageErrorRequest) ToImageError() (image.ImageError, error) {
	cat, err := ParseCategory(r.Category)
	if err != nil {
		return image.ImageError{}, err
	}
	return image.ImageError{
		FailedURL:        r.URL,
		ContextTag:       r.Context,
		Category:         cat,
		ExplicitFallback: r.Fallback,
	}, nil
}

// FallbackRequest selects a fallback by context or explicit category
type FallbackRequest struct {
	Context  string `query:"context"`
	Category string `query:"category"`
}

// CheckImageRequest asks the server to probe an image URL
type CheckImageRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// ParseCategory maps a wire name to an image.Category; empty means unknown
func ParseCategory(name string) (image.Category, error) {
	cat, ok := image.ParseCategory(name)
	if !ok {
		return image.CategoryUnknown, fmt.Errorf("unknown category %q", name)
	}
	return cat, nil
}
