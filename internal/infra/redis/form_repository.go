package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"forms-response-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// FormLoader fetches form content from a backing store (Postgres catalog, static fixtures).
type FormLoader interface {
	LoadForm(ctx context.Context, formID string) (domain.Form, error)
	FormIDOfQuestion(ctx context.Context, questionID string) (string, error)
}

// FormRepository caches form snapshots in Redis and falls back to a loader on cache miss.
// Snapshots are stored as:      SET form:{formID} {json}
// Question ownership is kept as: SET form:question:{questionID} {formID}
type FormRepository struct {
	client *redis.Client
	loader FormLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewFormRepository(client *redis.Client, loader FormLoader, ttl time.Duration) *FormRepository {
	return &FormRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *FormRepository) GetForm(ctx context.Context, formID string) (domain.Form, error) {
	if form, ok := r.cached(ctx, formID); ok {
		return form, nil
	}

	result, err, _ := r.sf.Do(formID, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if form, ok := r.cached(ctx, formID); ok {
			return form, nil
		}

		form, err := r.loader.LoadForm(ctx, formID)
		if err != nil {
			return domain.Form{}, err
		}
		r.store(ctx, form)
		return form, nil
	})
	if err != nil {
		return domain.Form{}, err
	}
	return result.(domain.Form), nil
}

func (r *FormRepository) FormOfQuestion(ctx context.Context, questionID string) (domain.Form, error) {
	formID, err := r.client.Get(ctx, r.questionKey(questionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("questionID", questionID).Msg("redis question lookup failed")
		}
		formID, err = r.loader.FormIDOfQuestion(ctx, questionID)
		if err != nil {
			return domain.Form{}, err
		}
	}
	return r.GetForm(ctx, formID)
}

func (r *FormRepository) cached(ctx context.Context, formID string) (domain.Form, bool) {
	raw, err := r.client.Get(ctx, r.formKey(formID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("formID", formID).Msg("redis form lookup failed")
		}
		return domain.Form{}, false
	}
	var form domain.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		log.Warn().Err(err).Str("formID", formID).Msg("discarding unreadable form snapshot")
		return domain.Form{}, false
	}
	return form, true
}

func (r *FormRepository) store(ctx context.Context, form domain.Form) {
	raw, err := json.Marshal(form)
	if err != nil {
		log.Warn().Err(err).Str("formID", form.ID).Msg("encode form snapshot")
		return
	}
	ttl := r.ttlWithJitter()
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.formKey(form.ID), raw, ttl)
	for _, q := range form.Questions {
		pipe.Set(ctx, r.questionKey(q.ID), form.ID, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("formID", form.ID).Msg("cache form snapshot")
	}
}

func (r *FormRepository) formKey(formID string) string {
	return "form:" + formID
}

func (r *FormRepository) questionKey(questionID string) string {
	return "form:question:" + questionID
}

func (r *FormRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
