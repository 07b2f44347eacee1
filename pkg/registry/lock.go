package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pipelineforge/pipelineforge/pkg/domain"
)

const lockTTL = 2 * time.Minute

// acquireLock takes the per-image-ref dedup lock: a concurrent seed of
// the same image funnels through one copy; losing the
// race is not an error, it just means another caller is already seeding
// this reference.
func (g *Gateway) acquireLock(ctx context.Context, ref domain.ImageReference) (release func(), acquired bool, err error) {
	key := lockKey(ref)
	token := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := g.locker.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.releaseIfOwner(releaseCtx, key, token)
	}
	return release, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

func (g *Gateway) releaseIfOwner(ctx context.Context, key, token string) {
	_, _ = releaseScript.Run(ctx, g.locker, []string{key}, token).Result()
}

func lockKey(ref domain.ImageReference) string {
	return "pipelineforge:seed-lock:" + ref.Canonical()
}
