package lock

import "context"

// Noop grants every request immediately. Use it when the store alone
// serializes writers, as the single-connection SQLite store does.
type Noop struct{}

func (Noop) Acquire(ctx context.Context, _ []string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func() {}, nil
}
