package friend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAmbiguousMatch is returned when a name query matches more than one record.
var ErrAmbiguousMatch = errors.New("ambiguous match")

var errNoMatch = errors.New("no match")

// Resolve finds the index of the record matching query. It tries, in order:
// an exact id, an exact case-insensitive name, then a case-insensitive
// substring of the name. A tier with more than one hit fails with
// ErrAmbiguousMatch naming the candidates instead of picking the first.
func Resolve[T any](items []T, query string, fields func(T) (id, name string)) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return -1, errNoMatch
	}
	for i, it := range items {
		if id, _ := fields(it); id == query {
			return i, nil
		}
	}

	lower := strings.ToLower(query)
	tiers := []func(name string) bool{
		func(name string) bool { return name == lower },
		func(name string) bool { return strings.Contains(name, lower) },
	}
	for _, match := range tiers {
		var hits []int
		for i, it := range items {
			if _, name := fields(it); match(strings.ToLower(name)) {
				hits = append(hits, i)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return hits[0], nil
		default:
			names := make([]string, len(hits))
			for j, h := range hits {
				id, name := fields(items[h])
				names[j] = fmt.Sprintf("%s (%s)", name, id)
			}
			return -1, fmt.Errorf("%w: %q matches %s", ErrAmbiguousMatch, query, strings.Join(names, ", "))
		}
	}
	return -1, errNoMatch
}
