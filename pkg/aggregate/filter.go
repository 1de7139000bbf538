package aggregate

import (
	"github.com/Sternrassler/gmgn-scan/pkg/pagination"
	"github.com/shopspring/decimal"
)

// Filter decides whether a record belongs in the result.
type Filter[R pagination.Record] func(R) bool

// All accepts every record.
func All[R pagination.Record]() Filter[R] {
	return func(R) bool { return true }
}

// EventIs accepts records whose event equals want.
func EventIs[R pagination.Record](want string, event func(R) string) Filter[R] {
	return func(r R) bool { return event(r) == want }
}

// InWindow accepts timestamped records with start <= t <= end.
func InWindow[R pagination.Timestamped](start, end int64) Filter[R] {
	return func(r R) bool {
		t := r.Time()
		return t >= start && t <= end
	}
}

// NotIn rejects records whose field is in the exclusion set.
func NotIn[R pagination.Record](excluded map[string]struct{}, field func(R) string) Filter[R] {
	return func(r R) bool {
		_, skip := excluded[field(r)]
		return !skip
	}
}

// AtLeast accepts records whose value is >= threshold.
func AtLeast[R pagination.Record](threshold decimal.Decimal, value func(R) decimal.Decimal) Filter[R] {
	return func(r R) bool { return value(r).GreaterThanOrEqual(threshold) }
}

// Not inverts a filter.
func Not[R pagination.Record](f Filter[R]) Filter[R] {
	return func(r R) bool { return !f(r) }
}

// And accepts records that pass every filter. Nil filters are skipped.
func And[R pagination.Record](filters ...Filter[R]) Filter[R] {
	return func(r R) bool {
		for _, f := range filters {
			if f != nil && !f(r) {
				return false
			}
		}
		return true
	}
}

// Set builds an exclusion set, skipping empty values.
func Set(values ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}
