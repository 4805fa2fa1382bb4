package memory

import (
	"context"
	"sync"
	"time"

	"forms-response-service/internal/domain"
)

// ReportCache keeps generated reports per (form, class scope) for ttl.
type ReportCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu          sync.RWMutex
	entries     map[string]map[string]cachedReport
	generations map[string]int64
}

type cachedReport struct {
	report    domain.FormReport
	expiresAt time.Time
}

func NewReportCache(ttl time.Duration) *ReportCache {
	return &ReportCache{
		ttl:         ttl,
		clock:       time.Now,
		entries:     make(map[string]map[string]cachedReport),
		generations: make(map[string]int64),
	}
}

func (c *ReportCache) Get(_ context.Context, formID, classID string) (domain.FormReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[formID][classID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.FormReport{}, false
	}
	return entry.report, true
}

func (c *ReportCache) Generation(_ context.Context, formID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[formID]
}

// Put ignores reports computed before the latest Invalidate of their form.
func (c *ReportCache) Put(_ context.Context, generation int64, report domain.FormReport) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[report.FormID] != generation {
		return
	}
	scopes, ok := c.entries[report.FormID]
	if !ok {
		scopes = make(map[string]cachedReport)
		c.entries[report.FormID] = scopes
	}
	scopes[report.ClassID] = cachedReport{report: report, expiresAt: c.clock().Add(c.ttl)}
}

// Invalidate drops every class scope of the form.
func (c *ReportCache) Invalidate(_ context.Context, formID string) {
	c.mu.Lock()
	delete(c.entries, formID)
	c.generations[formID]++
	c.mu.Unlock()
}
