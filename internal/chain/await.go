package chain

import (
	"context"

	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// Await executes c and waits for its result or for ctx to be done. Once
// ctx is done its error is returned even when a result is available, so
// a chain cut short by the deadline never reads as a success.
// Policies may complete the chain from other goroutines after Await
// returned; their result is discarded.
func Await(ctx context.Context, c PolicyChain) (policy.Result, error) {
	done := make(chan policy.Result, 1)
	c.Execute(func(r policy.Result) {
		done <- r
	})

	select {
	case r := <-done:
		if err := ctx.Err(); err != nil {
			return policy.Result{}, err
		}
		return r, nil
	case <-ctx.Done():
		return policy.Result{}, ctx.Err()
	}
}
