package voice

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/crmsync/internal/model"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long a resolved URL is reused; media URLs are signed and expire.
const DefaultTTL = 10 * time.Minute

// Lookup resolves a batch of voice ids to playable URLs in one request.
type Lookup interface {
	ResolveVoiceURLs(ctx context.Context, account string, voiceIDs []string) (map[string]string, error)
}

type entry struct {
	url     string
	expires time.Time
}

// Resolver fills VoiceURL on voice messages using one batched lookup per call.
type Resolver struct {
	lookup Lookup
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]entry
}

// NewResolver creates a resolver with a short-lived URL cache.
func NewResolver(lookup Lookup, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup: lookup,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]entry),
	}
}

// Resolve returns a new slice with VoiceURL populated where possible. Messages
// without a voice id pass through unchanged. A failed lookup is logged and
// the input is returned as is.
func (r *Resolver) Resolve(ctx context.Context, msgs []model.Message, account string) []model.Message {
	urls := make(map[string]string)
	var missing []string
	seen := make(map[string]bool)

	now := r.now()
	r.mu.Lock()
	for i := range msgs {
		id := msgs[i].VoiceID()
		if id == "" || msgs[i].VoiceURL != "" || seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := r.cache[id]; ok && now.Before(e.expires) {
			urls[id] = e.url
			continue
		}
		missing = append(missing, id)
	}
	r.mu.Unlock()

	if len(urls) == 0 && len(missing) == 0 {
		return msgs
	}

	if len(missing) > 0 && r.lookup != nil {
		resolved, err := r.lookup.ResolveVoiceURLs(ctx, account, missing)
		if err != nil {
			r.logger.Warn("voice url lookup failed", zap.Error(err), zap.Int("count", len(missing)))
			return msgs
		}
		expires := r.now().Add(r.ttl)
		r.mu.Lock()
		for id, url := range resolved {
			if url == "" {
				continue
			}
			urls[id] = url
			r.cache[id] = entry{url: url, expires: expires}
		}
		r.evictExpired(now)
		r.mu.Unlock()
	}

	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if url, ok := urls[out[i].VoiceID()]; ok && out[i].VoiceURL == "" {
			out[i].VoiceURL = url
		}
	}
	return out
}

// evictExpired drops stale cache entries. Caller holds mu.
func (r *Resolver) evictExpired(now time.Time) {
	for id, e := range r.cache {
		if !now.Before(e.expires) {
			delete(r.cache, id)
		}
	}
}
