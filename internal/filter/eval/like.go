package eval

// LikeMatch reports whether value matches a LIKE pattern. '%' matches any
// sequence including the empty one and '_' matches exactly one character.
// Matching is case-sensitive and there is no escape character.
func LikeMatch(value, pattern string) bool {
	v := []rune(value)
	p := []rune(pattern)

	vi, pi := 0, 0
	// Position of the last '%' seen and the value index it was tried at.
	star, mark := -1, 0

	for vi < len(v) {
		switch {
		case pi < len(p) && p[pi] == '%':
			star = pi
			mark = vi
			pi++
		case pi < len(p) && (p[pi] == '_' || p[pi] == v[vi]):
			vi++
			pi++
		case star >= 0:
			// Let the last '%' absorb one more character and retry.
			pi = star + 1
			mark++
			vi = mark
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '%' {
		pi++
	}
	return pi == len(p)
}

