package triage

import "github.com/platelab/labeler/internal/media"

// transitions lists the allowed moves. valid -> valid is a rename in place.
// invalid is terminal.
var transitions = map[media.Category][]media.Category{
	media.Unlabeled: {media.Valid, media.Invalid, media.Skipped},
	media.Skipped:   {media.Valid, media.Invalid},
	media.Valid:     {media.Valid},
}

// Allowed reports whether an image in from may be filed into to.
func Allowed(from, to media.Category) bool {
	for _, c := range transitions[from] {
		if c == to {
			return true
		}
	}
	return false
}
