// Package pagination walks cursor-paginated endpoints and fetches the
// discovered pages in parallel.
//
// Discovery is sequential: the cursor of page n+1 is only known once page n
// has been read. The Walker follows the chain until a stop condition and
// returns the ordered page descriptors. The BatchFetcher then fetches those
// descriptors with a bounded worker pool, dropping pages that fail after the
// executor's own retries.
//
// Example usage:
//
//	engine := pagination.NewEngine[gmgn.Trade](source, pagination.WalkerConfig{}, pagination.DefaultConfig())
//	disc := engine.Run(ctx, address, pagination.OlderThan[gmgn.Trade](start), 5, func(p *pagination.PageResult[gmgn.Trade]) {
//		agg.Add(p.Records)
//	})
//
// Stop conditions:
//   - the page fetch fails after retries (the page is not included)
//   - the page is empty, the stop predicate matches, the page has no next
//     cursor, or the next cursor was already seen (the page is included)
//   - the MaxPages backstop is reached
package pagination
