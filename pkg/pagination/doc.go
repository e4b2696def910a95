// Package pagination walks Ashby's cursor paginated list endpoints.
//
// Ashby list RPCs answer with moreDataAvailable and nextCursor. The fetcher
// reissues the call with the cursor injected into the request body until
// the API stops offering more data, pausing briefly between pages.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(ashbyClient, pagination.DefaultConfig())
//	records, err := fetcher.FetchAll(ctx, "application.list", map[string]any{"jobId": id})
//
// The fetcher:
//   - Copies the caller's params for every page and never mutates them
//   - Stops at the first failed page and returns no partial results
//   - Keeps server order across pages
//   - Requires both moreDataAvailable and a non-empty nextCursor to continue
//   - Fails with ErrCursorCycle when the API hands back a cursor it already used
package pagination
