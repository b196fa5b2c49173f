package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/observe"
)

// Store 缓存存储后端
type Store interface {
	Get(ctx context.Context, key string) (model.FortuneDataset, bool, error)
	Set(ctx context.Context, key string, ds model.FortuneDataset) error
	Keys(ctx context.Context) ([]string, error)
}

// FetchFunc 缓存未命中时获取数据
type FetchFunc func(ctx context.Context) (model.FortuneDataset, error)

// FortuneCache 以出生信息指纹为 key 的运势数据缓存。
// 同一 key 的并发未命中只触发一次获取，失败结果不缓存。
type FortuneCache struct {
	store        Store
	group        singleflight.Group
	rec          observe.Recorder
	fetchTimeout time.Duration
}

// Option 缓存选项
type Option func(*FortuneCache)

// WithFetchTimeout 共享获取的最长耗时。获取不随发起方取消，由该时限兜底。
func WithFetchTimeout(d time.Duration) Option {
	return func(c *FortuneCache) { c.fetchTimeout = d }
}

// New 创建缓存
func New(store Store, rec observe.Recorder, opts ...Option) *FortuneCache {
	if rec == nil {
		rec = observe.Nop()
	}
	c := &FortuneCache{store: store, rec: rec}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key 由姓名、出生年月日时分与报告类型生成确定性指纹
func Key(u model.UserInfo, rt model.ReportType) string {
	raw := fmt.Sprintf("%s|%d|%d|%d|%d|%d|%s",
		u.Name, u.BirthYear, u.BirthMonth, u.BirthDay, u.BirthHour, u.BirthMinute, rt)
	sum := sha256.Sum256([]byte(raw))
	return string(rt) + ":" + hex.EncodeToString(sum[:16])
}

// GetOrFetch 命中时直接返回缓存，未命中时调用 fetch 并在成功后写入。
// 同一 key 的等待方共享一次获取；某个调用方取消只影响它自己。
func (c *FortuneCache) GetOrFetch(ctx context.Context, u model.UserInfo, rt model.ReportType, fetch FetchFunc) (model.FortuneDataset, error) {
	key := Key(u, rt)

	if ds, ok := c.lookup(ctx, key, rt); ok {
		return ds, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
			defer cancel()
		}

		// 排队期间可能已被其他调用写入
		if ds, ok, err := c.store.Get(fctx, key); err == nil && ok {
			return ds, nil
		}
		ds, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fctx, key, ds); err != nil {
			c.rec.Record(observe.Event{Name: observe.CacheWriteErr, Message: "写入缓存失败", ReportType: string(rt), Err: err})
		}
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return model.FortuneDataset{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.FortuneDataset{}, res.Err
		}
		return res.Val.(model.FortuneDataset), nil
	}
}

func (c *FortuneCache) lookup(ctx context.Context, key string, rt model.ReportType) (model.FortuneDataset, bool) {
	start := time.Now()
	ds, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.rec.Record(observe.Event{Name: observe.CacheMiss, Message: "读取缓存失败", ReportType: string(rt), Err: err})
		return model.FortuneDataset{}, false
	}
	if !ok {
		c.rec.Record(observe.Event{Name: observe.CacheMiss, ReportType: string(rt)})
		return model.FortuneDataset{}, false
	}
	c.rec.Record(observe.Event{Name: observe.CacheHit, ReportType: string(rt), Duration: time.Since(start)})
	return ds, true
}

// Keys 当前缓存的 key，已排序
func (c *FortuneCache) Keys(ctx context.Context) []string {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil
	}
	sort.Strings(keys)
	return keys
}

// Len 当前缓存条目数
func (c *FortuneCache) Len(ctx context.Context) int {
	return len(c.Keys(ctx))
}
