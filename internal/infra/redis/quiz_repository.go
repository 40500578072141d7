package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-session-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizConfig, error)
}

// QuizRepository caches full quiz documents in Redis and falls back to the
// loader on cache miss. The whole config is cached as one JSON value:
// the session engine needs prompts, options, and per-question limits, not
// just an answer key.
//
//	SET quiz:{quizID}:config {json} EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.QuizConfig, error) {
	key := r.configKey(quizID)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
		var quiz domain.QuizConfig
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
		// Corrupt cache entry; fall through to the loader and rewrite it.
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var quiz domain.QuizConfig
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizConfig{}, err
		}

		raw, err := json.Marshal(quiz)
		if err != nil {
			return domain.QuizConfig{}, fmt.Errorf("marshal quiz %s: %w", quizID, err)
		}
		// best-effort: a failed cache write only costs a reload
		_ = r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err()
		return quiz, nil
	})
	if err != nil {
		return domain.QuizConfig{}, err
	}
	return result.(domain.QuizConfig), nil
}

func (r *QuizRepository) configKey(quizID string) string {
	return "quiz:" + quizID + ":config"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
