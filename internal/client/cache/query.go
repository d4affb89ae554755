package cache

import "context"

// Result is one snapshot of a query. Stale is set while cached data is
// shown and the fresh fetch is still running. Loading is set until
// either the cache or the fetch produced a value.
type Result[S any] struct {
	Data    S
	Loading bool
	Stale   bool
	Err     error
}

// Query emits the cached value right away, then the fetched one. A
// non-empty fetch result is written back through write. The channel is
// closed after the final snapshot.
func Query[S ~[]E, E any](
	ctx context.Context,
	read func() (S, bool),
	fetch func(context.Context) (S, error),
	write func(S),
) <-chan Result[S] {
	out := make(chan Result[S], 2)

	go func() {
		defer close(out)

		cached, hit := read()
		if hit {
			out <- Result[S]{Data: cached, Stale: true}
		} else {
			out <- Result[S]{Loading: true}
		}

		fresh, err := fetch(ctx)
		if err != nil {
			out <- Result[S]{Data: cached, Err: err}
			return
		}
		if len(fresh) > 0 {
			write(fresh)
		}
		out <- Result[S]{Data: fresh}
	}()

	return out
}
