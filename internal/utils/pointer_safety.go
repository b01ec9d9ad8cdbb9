package utils

import "strings"

func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// IsBlank reports whether s is nil or holds only whitespace.
func IsBlank(s *string) bool {
	return strings.TrimSpace(Value(s)) == ""
}
