package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type cachedSpace struct {
	ID       string
	Name     string
	Capacity int
}

// TestMemoryCache 测试内存缓存
func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.KeyPrefix = "test:"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create memory cache: %v", err)
	}
	defer c.Close()

	t.Run("Set/Get", func(t *testing.T) {
		want := cachedSpace{ID: "S1", Name: "lobby", Capacity: 20}
		if err := c.Set(ctx, "space:S1", want, time.Minute); err != nil {
			t.Fatalf("failed to set cache: %v", err)
		}
		var got cachedSpace
		if err := c.Get(ctx, "space:S1", &got); err != nil {
			t.Fatalf("failed to get cache: %v", err)
		}
		if got != want {
			t.Errorf("cached space mismatch: got %+v, want %+v", got, want)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		var v string
		if err := c.Get(ctx, "absent", &v); !IsMiss(err) {
			t.Errorf("expected miss, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "k", "v", time.Minute)
		if err := c.Delete(ctx, "k"); err != nil {
			t.Fatalf("failed to delete cache: %v", err)
		}
		ok, _ := c.Exists(ctx, "k")
		if ok {
			t.Error("key should be deleted")
		}
	})

	t.Run("Expire", func(t *testing.T) {
		_ = c.Set(ctx, "short", "v", 20*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		ok, _ := c.Exists(ctx, "short")
		if ok {
			t.Error("key should be expired")
		}
	})
}

// TestConfigValidate 测试配置校验
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "memory default", cfg: DefaultConfig()},
		{name: "memory nil config filled", cfg: &Config{Driver: DriverMemory}},
		{name: "redis missing config", cfg: &Config{Driver: DriverRedis}, wantErr: true},
		{name: "redis standalone no addr", cfg: &Config{Driver: DriverRedis, Redis: &RedisConfig{Mode: RedisStandalone}}, wantErr: true},
		{name: "redis sentinel no master", cfg: &Config{Driver: DriverRedis, Redis: &RedisConfig{Mode: RedisSentinel, Addrs: []string{"a:26379"}}}, wantErr: true},
		{name: "redis cluster ok", cfg: &Config{Driver: DriverRedis, Redis: &RedisConfig{Mode: RedisCluster, Addrs: []string{"a:6379"}}}},
		{name: "unknown driver", cfg: &Config{Driver: "memcached"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoaderSingleflight 测试并发未命中只加载一次
func TestLoaderSingleflight(t *testing.T) {
	ctx := context.Background()
	c, _ := New(nil)
	loader := NewLoader[cachedSpace](c, time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (cachedSpace, error) {
		calls.Add(1)
		<-release
		return cachedSpace{ID: "S1", Capacity: 10}, nil
	}

	var wg sync.WaitGroup
	results := make([]cachedSpace, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = loader.Load(ctx, "space:S1", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
	for _, r := range results {
		if r.ID != "S1" {
			t.Errorf("unexpected result %+v", r)
		}
	}

	// 第二次直接命中缓存
	got, err := loader.Load(ctx, "space:S1", func(context.Context) (cachedSpace, error) {
		return cachedSpace{}, errors.New("should not be called")
	})
	if err != nil || got.Capacity != 10 {
		t.Errorf("expected cache hit, got %+v, %v", got, err)
	}
}

// TestLoaderErrorNotCached 测试加载失败不写入缓存
func TestLoaderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c, _ := New(nil)
	loader := NewLoader[string](c, time.Minute)
	boom := errors.New("db down")

	if _, err := loader.Load(ctx, "user:U1", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	got, err := loader.Load(ctx, "user:U1", func(context.Context) (string, error) { return "alice", nil })
	if err != nil || got != "alice" {
		t.Errorf("expected reload, got %q, %v", got, err)
	}

	if err := loader.Invalidate(ctx, "user:U1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if ok, _ := c.Exists(ctx, "user:U1"); ok {
		t.Error("key should be invalidated")
	}
}
