package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"forms-response-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// FormLoader fetches form content from a backing store (Postgres catalog, static fixtures).
type FormLoader interface {
	LoadForm(ctx context.Context, formID string) (domain.Form, error)
	// FormIDOfQuestion returns domain.ErrQuestionNotFound for unknown questions.
	FormIDOfQuestion(ctx context.Context, questionID string) (string, error)
}

// FormRepository caches forms with TTL to avoid repeated catalog hits.
type FormRepository struct {
	loader FormLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu        sync.RWMutex
	rnd       *rand.Rand
	cache     map[string]cachedForm
	questions map[string]string
}

type cachedForm struct {
	form      domain.Form
	expiresAt time.Time
}

func NewFormRepository(loader FormLoader, ttl time.Duration) *FormRepository {
	return &FormRepository{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:     make(map[string]cachedForm),
		questions: make(map[string]string),
	}
}

func (r *FormRepository) GetForm(ctx context.Context, formID string) (domain.Form, error) {
	if form, ok := r.cached(formID); ok {
		return form, nil
	}

	result, err, _ := r.sf.Do(formID, func() (interface{}, error) {
		if form, ok := r.cached(formID); ok {
			return form, nil
		}

		form, err := r.loader.LoadForm(ctx, formID)
		if err != nil {
			return domain.Form{}, err
		}

		now := r.clock()
		r.mu.Lock()
		r.cache[formID] = cachedForm{
			form:      form,
			expiresAt: now.Add(r.ttlWithJitterLocked()),
		}
		for _, q := range form.Questions {
			r.questions[q.ID] = form.ID
		}
		r.mu.Unlock()
		return form, nil
	})
	if err != nil {
		return domain.Form{}, err
	}
	return result.(domain.Form), nil
}

// FormOfQuestion resolves the owning form, asking the loader only for unseen questions.
func (r *FormRepository) FormOfQuestion(ctx context.Context, questionID string) (domain.Form, error) {
	r.mu.RLock()
	formID, ok := r.questions[questionID]
	r.mu.RUnlock()

	if !ok {
		var err error
		formID, err = r.loader.FormIDOfQuestion(ctx, questionID)
		if err != nil {
			return domain.Form{}, err
		}
	}
	return r.GetForm(ctx, formID)
}

func (r *FormRepository) cached(formID string) (domain.Form, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[formID]; ok && entry.expiresAt.After(now) {
		return entry.form, true
	}
	return domain.Form{}, false
}

func (r *FormRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations of forms loaded together
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticFormLoader is a loader backed by an in-memory map (tests, demo mode).
type StaticFormLoader struct {
	forms     map[string]domain.Form
	questions map[string]string
}

func NewStaticFormLoader(forms ...domain.Form) *StaticFormLoader {
	l := &StaticFormLoader{
		forms:     make(map[string]domain.Form, len(forms)),
		questions: make(map[string]string),
	}
	for _, f := range forms {
		l.forms[f.ID] = f
		for _, q := range f.Questions {
			l.questions[q.ID] = f.ID
		}
	}
	return l
}

func (l *StaticFormLoader) LoadForm(_ context.Context, formID string) (domain.Form, error) {
	if form, ok := l.forms[formID]; ok {
		return form, nil
	}
	return domain.Form{}, domain.ErrFormNotFound
}

func (l *StaticFormLoader) FormIDOfQuestion(_ context.Context, questionID string) (string, error) {
	if formID, ok := l.questions[questionID]; ok {
		return formID, nil
	}
	return "", domain.ErrQuestionNotFound
}
