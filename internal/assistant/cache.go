package assistant

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// suggestionCache кэширует недавние инлайн-подсказки, чтобы авто-саджест
// не гонял одинаковые запросы к провайдеру на каждое срабатывание.
type suggestionCache struct {
	cache *ttlcache.Cache[string, string]
}

func newSuggestionCache(ttl time.Duration) *suggestionCache {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &suggestionCache{cache: c}
}

// Close останавливает фоновую очистку кэша.
func (s *suggestionCache) Close() {
	s.cache.Stop()
}

func (s *suggestionCache) Get(key string) (string, bool) {
	item := s.cache.Get(key)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

func (s *suggestionCache) Set(key, value string) {
	s.cache.Set(key, value, ttlcache.DefaultTTL)
}

// cacheKey строит ключ по модели и полному тексту промпта.
func cacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
