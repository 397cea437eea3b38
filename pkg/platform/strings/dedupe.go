// Package strings provides string manipulation utilities.
package strings

// Dedupe removes duplicates and empty strings from a slice. Order is
// preserved and values are compared byte-for-byte: no trimming or case
// folding, so contact values stay exactly as submitted.
//
// Example:
//
//	Dedupe([]string{"a@x.com", "", "A@x.com", "a@x.com"})
//	// Returns: []string{"a@x.com", "A@x.com"}
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}

// Unique removes duplicates from a slice of comparable values, keeping the
// first occurrence of each.
func Unique[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}

	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
