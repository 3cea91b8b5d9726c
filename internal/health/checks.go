package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoAPIs is returned by DeploymentsCheck when nothing is deployed.
var ErrNoAPIs = errors.New("no APIs deployed")

// RedisCheck pings a redis server.
func RedisCheck(client redis.Cmdable) CheckFunc {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}

// DeploymentsCheck fails while count reports no deployed APIs.
func DeploymentsCheck(count func() int) CheckFunc {
	return func(context.Context) error {
		if count() == 0 {
			return ErrNoAPIs
		}
		return nil
	}
}
