package render

import (
	"regexp"

	"github.com/aretw0/leadflow/pkg/domain"
)

// Interpolator substitutes state values into node text.
type Interpolator func(text string, state domain.State) string

var placeholder = regexp.MustCompile(`{{\s*(\w+)\s*}}`)

// Interpolate replaces every {{key}} with the formatted state value.
// Unknown keys render as the empty string.
func Interpolate(text string, state domain.State) string {
	if text == "" {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		return state.String(key)
	})
}
