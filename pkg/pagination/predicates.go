package pagination

// OlderThan stops once the last record of a page is older than start. Only the
// last record is compared; the upstream does not promise strict ordering
// within a page, so a page straddling start is kept and filtered later.
func OlderThan[R Timestamped](start int64) StopFunc[R] {
	return func(page *PageResult[R]) bool {
		if len(page.Records) == 0 {
			return false
		}
		return page.Records[len(page.Records)-1].Time() < start
	}
}

// MaxPagesStop stops after n pages have been discovered.
func MaxPagesStop[R Record](n int) StopFunc[R] {
	return func(page *PageResult[R]) bool {
		return page.Descriptor.Index+1 >= n
	}
}

// AnyOf stops when any of the given predicates does. Nil predicates are skipped.
func AnyOf[R Record](stops ...StopFunc[R]) StopFunc[R] {
	return func(page *PageResult[R]) bool {
		for _, stop := range stops {
			if stop != nil && stop(page) {
				return true
			}
		}
		return false
	}
}
