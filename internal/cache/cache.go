// Package cache 会话级行程缓存
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/langchou/tripdash/internal/metrics"
	"github.com/langchou/tripdash/internal/models"
)

// DefaultTTL 缓存有效期
const DefaultTTL = time.Hour

const (
	keyTimestamp  = "ts"
	keyOrder      = "order"
	keyVehicles   = "vehicles"
	keyOwner      = "owner"
	tripKeyPrefix = "trip:"
)

// Fingerprint access token 的指纹，只保存摘要前缀
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// TripKey 单条行程的存储键
func TripKey(id string) string {
	return tripKeyPrefix + id
}

// Cache 单个会话的行程与车辆缓存
type Cache struct {
	store   Store
	ttl     time.Duration
	owner   string // 为空时不校验归属
	machine *Machine
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New 创建缓存，ttl <= 0 时使用 DefaultTTL
func New(store Store, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
	c.machine = NewMachine(c.onStateChange)
	return c
}

// ForOwner 返回绑定到 owner 的视图，与 c 共享存储和状态机
//
// 写入时记录 owner，读取时 owner 不一致视为未命中
func (c *Cache) ForOwner(owner string) *Cache {
	view := *c
	view.owner = owner
	return &view
}

// ownedBy 存储中的数据是否属于当前 owner
func (c *Cache) ownedBy(ctx context.Context) bool {
	if c.owner == "" {
		return true
	}
	raw, err := c.store.Get(ctx, keyOwner)
	if err != nil {
		return false
	}
	return string(raw) == c.owner
}

func (c *Cache) onStateChange(from, to string) {
	c.logger.Debug("Cache state changed", zap.String("from", from), zap.String("to", to))
	if c.metrics != nil {
		c.metrics.CacheTransitions.WithLabelValues(from, to).Inc()
	}
}

func (c *Cache) record(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

// State 根据写入时间判断 empty / fresh / stale
func (c *Cache) State(ctx context.Context, now time.Time) string {
	observed := StateEmpty
	if ts, ok := c.fetchedAt(ctx); ok {
		if now.Sub(ts) < c.ttl {
			observed = StateFresh
		} else {
			observed = StateStale
		}
	}
	c.machine.Sync(observed)
	return observed
}

// FetchedAt 最近一次写入的时间
func (c *Cache) FetchedAt(ctx context.Context) (time.Time, bool) {
	return c.fetchedAt(ctx)
}

func (c *Cache) fetchedAt(ctx context.Context) (time.Time, bool) {
	raw, err := c.store.Get(ctx, keyTimestamp)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Failed to read cache timestamp", zap.Error(err))
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		c.logger.Warn("Invalid cache timestamp", zap.ByteString("value", raw))
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Trips 返回缓存的行程，按写入时的顺序
//
// 不新鲜、缺失或数据损坏时返回 false
func (c *Cache) Trips(ctx context.Context, now time.Time) ([]models.MergedTrip, bool) {
	switch c.State(ctx, now) {
	case StateEmpty:
		c.record(metrics.CacheMiss)
		return nil, false
	case StateStale:
		c.record(metrics.CacheStale)
		return nil, false
	}
	if !c.ownedBy(ctx) {
		c.record(metrics.CacheMiss)
		c.logger.Debug("Session cache belongs to another token, treating as miss")
		return nil, false
	}

	raw, err := c.store.Get(ctx, keyOrder)
	if err != nil {
		c.corrupt("order", err)
		return nil, false
	}
	var order []string
	if err := json.Unmarshal(raw, &order); err != nil {
		c.corrupt("order", err)
		return nil, false
	}

	trips := make([]models.MergedTrip, 0, len(order))
	for _, id := range order {
		trip, err := c.loadTrip(ctx, id)
		if err != nil {
			c.corrupt(TripKey(id), err)
			return nil, false
		}
		trips = append(trips, *trip)
	}

	c.record(metrics.CacheHit)
	return trips, true
}

func (c *Cache) corrupt(key string, err error) {
	c.record(metrics.CacheCorrupt)
	c.logger.Warn("Session cache is inconsistent, treating as miss",
		zap.String("key", key),
		zap.Error(err),
	)
}

// Trip 按 ID 查找缓存的行程，不检查新鲜度
func (c *Cache) Trip(ctx context.Context, id string) (*models.MergedTrip, bool) {
	if !c.ownedBy(ctx) {
		return nil, false
	}
	trip, err := c.loadTrip(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Failed to read cached trip", zap.String("trip_id", id), zap.Error(err))
		}
		return nil, false
	}
	return trip, true
}

func (c *Cache) loadTrip(ctx context.Context, id string) (*models.MergedTrip, error) {
	raw, err := c.store.Get(ctx, TripKey(id))
	if err != nil {
		return nil, err
	}
	var trip models.MergedTrip
	if err := json.Unmarshal(raw, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// Vehicles 返回缓存的车辆列表，列表为空视为未命中
func (c *Cache) Vehicles(ctx context.Context) ([]models.Vehicle, bool) {
	if !c.ownedBy(ctx) {
		return nil, false
	}
	raw, err := c.store.Get(ctx, keyVehicles)
	if err != nil {
		return nil, false
	}
	var vehicles []models.Vehicle
	if err := json.Unmarshal(raw, &vehicles); err != nil {
		c.corrupt(keyVehicles, err)
		return nil, false
	}
	if len(vehicles) == 0 {
		return nil, false
	}
	return vehicles, true
}

// Put 替换会话内容：每条行程、顺序、车辆、归属和写入时间
//
// 重复的行程 ID 只保留第一次出现的记录，顺序与条目一一对应
func (c *Cache) Put(ctx context.Context, trips []models.MergedTrip, vehicles []models.Vehicle, now time.Time) error {
	entries := make(map[string][]byte, len(trips)+4)
	order := make([]string, 0, len(trips))
	for _, trip := range trips {
		key := TripKey(trip.ID)
		if _, dup := entries[key]; dup {
			c.logger.Debug("Skipping duplicate trip", zap.String("trip_id", trip.ID))
			continue
		}
		raw, err := json.Marshal(trip)
		if err != nil {
			return err
		}
		entries[key] = raw
		order = append(order, trip.ID)
	}

	rawOrder, err := json.Marshal(order)
	if err != nil {
		return err
	}
	entries[keyOrder] = rawOrder

	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	rawVehicles, err := json.Marshal(vehicles)
	if err != nil {
		return err
	}
	entries[keyVehicles] = rawVehicles
	entries[keyTimestamp] = []byte(strconv.FormatInt(now.UnixMilli(), 10))
	if c.owner != "" {
		entries[keyOwner] = []byte(c.owner)
	}

	if err := c.store.Replace(ctx, entries); err != nil {
		return err
	}
	return c.machine.Trigger(EventStore)
}

// PutVehicles 只更新车辆列表
//
// 存储属于其他 owner 时先整体替换，旧数据不会被新 owner 继承
func (c *Cache) PutVehicles(ctx context.Context, vehicles []models.Vehicle) error {
	raw, err := json.Marshal(vehicles)
	if err != nil {
		return err
	}
	if c.owner == "" {
		return c.store.SetMany(ctx, map[string][]byte{keyVehicles: raw})
	}
	entries := map[string][]byte{keyVehicles: raw, keyOwner: []byte(c.owner)}
	if c.ownedBy(ctx) {
		return c.store.SetMany(ctx, entries)
	}
	if err := c.store.Replace(ctx, entries); err != nil {
		return err
	}
	return c.machine.Trigger(EventClear)
}

// Clear 清空会话缓存
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	return c.machine.Trigger(EventClear)
}

// Machine 返回状态机
func (c *Cache) Machine() *Machine {
	return c.machine
}
