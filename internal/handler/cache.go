package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/shift-manager/roster/internal/domain"
)

func rosterCacheKey(scope domain.Scope, month domain.Month) string {
	return fmt.Sprintf("roster_%s_%s", scope.String(), month.String())
}

// 每次失效都会递增版本号，读取数据库前记下的版本号已经变化时不再回填缓存
func rosterVersionKey(cacheKey string) string {
	return "version_" + cacheKey
}

// KEYS[1] 缓存，KEYS[2] 版本号；ARGV[1] 读取数据库前的版本号，ARGV[2] 数据，ARGV[3] 过期时间（秒）
var setRosterIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if current == false then
	current = '0'
end
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
return 1
`)

// rosterCacheKeys 返回一批排班修改后需要失效的缓存：涉及月份的全员视图和每个员工自己的视图
func rosterCacheKeys(keys []domain.Key) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	add := func(k string) {
		if _, exists := seen[k]; exists {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, k := range keys {
		t, err := k.Date.Time()
		if err != nil {
			continue
		}
		month := domain.MonthOf(t)
		add(rosterCacheKey(domain.ScopeAll(), month))
		add(rosterCacheKey(domain.ScopeSelf(k.EmployeeID), month))
	}
	return out
}

func (h *Handler) redisContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(h.config.Redis.OperationExpiration)*time.Second)
}

// getCachedRoster 缓存未命中或 redis 出错时返回 false，调用方回退到数据库
func (h *Handler) getCachedRoster(scope domain.Scope, month domain.Month) ([]*domain.RosterEntry, bool) {
	ctx, cancel := h.redisContext()
	defer cancel()

	data, err := h.redisClient.Get(ctx, rosterCacheKey(scope, month)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("读取排班缓存失败", "scope", scope.String(), "month", month.String(), "error", err)
		}
		return nil, false
	}

	var entries []*domain.RosterEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("排班缓存格式错误", "scope", scope.String(), "month", month.String(), "error", err)
		return nil, false
	}
	return entries, true
}

// rosterCacheVersion 必须在读取数据库之前调用，redis 出错时返回 false，调用方不再回填缓存
func (h *Handler) rosterCacheVersion(scope domain.Scope, month domain.Month) (string, bool) {
	ctx, cancel := h.redisContext()
	defer cancel()

	version, err := h.redisClient.Get(ctx, rosterVersionKey(rosterCacheKey(scope, month))).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", true
	case err != nil:
		slog.Warn("读取排班缓存版本失败", "scope", scope.String(), "month", month.String(), "error", err)
		return "", false
	}
	return version, true
}

// setCachedRoster 只有在 version 之后没有发生过失效时才写入
func (h *Handler) setCachedRoster(scope domain.Scope, month domain.Month, version string, entries []*domain.RosterEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		slog.Warn("序列化排班缓存失败", "error", err)
		return
	}

	ctx, cancel := h.redisContext()
	defer cancel()

	key := rosterCacheKey(scope, month)
	keys := []string{key, rosterVersionKey(key)}
	if err := setRosterIfVersion.Run(ctx, h.redisClient, keys, version, string(data), h.config.Roster.CacheExpiration).Err(); err != nil {
		slog.Warn("写入排班缓存失败", "scope", scope.String(), "month", month.String(), "error", err)
	}
}

func (h *Handler) invalidateRosterCache(keys []domain.Key) {
	cacheKeys := rosterCacheKeys(keys)
	if len(cacheKeys) == 0 {
		return
	}

	ctx, cancel := h.redisContext()
	defer cancel()

	// 先递增版本号再删除，正在读取数据库的请求不会把旧数据写回
	// 失败时只能等缓存过期，记录下来便于排查
	for _, key := range cacheKeys {
		if err := h.redisClient.Incr(ctx, rosterVersionKey(key)).Err(); err != nil {
			slog.Error("更新排班缓存版本失败", "key", key, "error", err)
		}
	}
	if err := h.redisClient.Del(ctx, cacheKeys...).Err(); err != nil {
		slog.Error("清除排班缓存失败", "keys", cacheKeys, "error", err)
	}
}
