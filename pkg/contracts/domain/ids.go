package domain

import "regexp"

// MaxIDLength bounds indicator and panel ids
const MaxIDLength = 32

// idPattern is shared by layout validation and the HTTP routes, so any id
// a layout accepts can also be addressed in a URL path
var idPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,31}$`)

// ValidID reports whether id is a well-formed indicator or panel id: a
// letter followed by letters, digits or underscores, at most MaxIDLength long
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
