package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"forms-response-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const allClasses = "_all"

// putReportScript writes the report only while the form's generation is unchanged.
var putReportScript = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// ReportCache keeps generated reports in one hash per form:
// HSET report:{formID} {classID|_all} {json}
// INCR report:{formID}:gen on every invalidation
// Invalidation deletes the whole hash so every class scope is recomputed.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func (c *ReportCache) Get(ctx context.Context, formID, classID string) (domain.FormReport, bool) {
	raw, err := c.client.HGet(ctx, c.key(formID), field(classID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("formID", formID).Msg("redis report lookup failed")
		}
		return domain.FormReport{}, false
	}
	var report domain.FormReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return domain.FormReport{}, false
	}
	return report, true
}

// Generation returns -1 when Redis cannot be read, which no Put will match.
func (c *ReportCache) Generation(ctx context.Context, formID string) int64 {
	gen, err := c.client.Get(ctx, c.generationKey(formID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0
		}
		log.Warn().Err(err).Str("formID", formID).Msg("read report generation")
		return -1
	}
	return gen
}

func (c *ReportCache) Put(ctx context.Context, generation int64, report domain.FormReport) {
	if c.ttl <= 0 || generation < 0 {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		log.Warn().Err(err).Str("formID", report.FormID).Msg("encode report")
		return
	}
	keys := []string{c.key(report.FormID), c.generationKey(report.FormID)}
	stored, err := putReportScript.Run(ctx, c.client, keys,
		generation, field(report.ClassID), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		log.Warn().Err(err).Str("formID", report.FormID).Msg("cache report")
		return
	}
	if stored == 0 {
		log.Debug().Str("formID", report.FormID).Msg("report outdated by invalidation, not cached")
	}
}

func (c *ReportCache) Invalidate(ctx context.Context, formID string) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.generationKey(formID))
	pipe.Del(ctx, c.key(formID))
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("formID", formID).Msg("invalidate cached reports")
	}
}

func (c *ReportCache) key(formID string) string {
	return "report:" + formID
}

func (c *ReportCache) generationKey(formID string) string {
	return "report:" + formID + ":gen"
}

func field(classID string) string {
	if classID == "" {
		return allClasses
	}
	return classID
}
