package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const asyncCacheTimeout = 200 * time.Millisecond

// AsyncCacheSet actualiza caché en background sin bloquear
func AsyncCacheSet(cache Cache, key string, value interface{}, ttl int, log *zap.Logger) {
	if cache == nil {
		return
	}

	go func() {
		// La petición original puede haber terminado ya; la caché usa su propio contexto.
		cacheCtx, cancel := context.WithTimeout(context.Background(), asyncCacheTimeout)
		defer cancel()

		if err := cache.Set(cacheCtx, key, value, ttl); err != nil {
			log.Warn("Cache update failed",
				zap.String("key", key),
				zap.Error(err))
		}
	}()
}
