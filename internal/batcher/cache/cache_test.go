package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/redis"
)

type result struct {
	Words int    `json:"words"`
	Note  string `json:"note"`
}

func TestMemoryGetPut(t *testing.T) {
	m, err := NewMemory[result](MemoryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	ctx := context.Background()

	a := batcher.NewItem("Hello world.")
	if _, ok := m.Get(ctx, a); ok {
		t.Fatal("expected miss on empty cache")
	}
	m.Put(ctx, map[batcher.Item]result{a: {Words: 2}})
	got, ok := m.Get(ctx, a)
	if !ok || got.Words != 2 {
		t.Fatalf("expected hit with 2 words, got %+v (ok=%v)", got, ok)
	}

	excluded := batcher.NewItem("Hello world.", batcher.Range{Start: 0, End: 5})
	if _, ok := m.Get(ctx, excluded); ok {
		t.Error("item with different exclusions must miss")
	}

	hits, misses := m.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("expected 1 hit and 2 misses, got %d/%d", hits, misses)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Get(ctx, a); ok {
		t.Error("expected miss after clear")
	}
}

func TestMemoryEvictsUnderBudget(t *testing.T) {
	m, err := NewMemory[result](MemoryConfig{NumCounters: 1000, MaxCost: 10 * (entryOverhead + 16)})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	ctx := context.Background()

	batch := make(map[batcher.Item]result)
	for i := 0; i < 200; i++ {
		batch[batcher.NewItem(time.Duration(i).String()+" sentence.")] = result{Words: i}
	}
	m.Put(ctx, batch)

	present := 0
	for item := range batch {
		if _, ok := m.Get(ctx, item); ok {
			present++
		}
	}
	if present > 20 {
		t.Errorf("expected the cost budget to bound the cache, %d entries present", present)
	}
}

func TestTieredPromotesSharedHits(t *testing.T) {
	local, err := NewMemory[result](MemoryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer local.Close()
	shared := batcher.NewMapStore[result]()
	tiered := NewTiered[result](local, shared)
	ctx := context.Background()

	item := batcher.NewItem("Shared sentence.")
	shared.Put(ctx, map[batcher.Item]result{item: {Words: 2}})

	if got, ok := tiered.Get(ctx, item); !ok || got.Words != 2 {
		t.Fatalf("expected shared hit, got %+v (ok=%v)", got, ok)
	}
	if _, ok := local.Get(ctx, item); !ok {
		t.Error("shared hit must be promoted to the local tier")
	}

	other := batcher.NewItem("Written through.")
	tiered.Put(ctx, map[batcher.Item]result{other: {Words: 2}})
	if _, ok := shared.Get(ctx, other); !ok {
		t.Error("put must reach the shared tier")
	}

	if err := tiered.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if shared.Len() != 0 {
		t.Error("clear must empty the shared tier")
	}
	if _, ok := tiered.Get(ctx, item); ok {
		t.Error("expected miss after clear")
	}
}

func TestTieredWithBatcher(t *testing.T) {
	local, err := NewMemory[result](MemoryConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer local.Close()
	store := NewTiered[result](local, batcher.NewMapStore[result]())

	calls := 0
	eng := batcher.EngineFunc[result](func(ctx context.Context, items []batcher.Item) (map[batcher.Item]result, error) {
		calls++
		out := make(map[batcher.Item]result, len(items))
		for _, item := range items {
			out[item] = result{Words: len(item.Text)}
		}
		return out, nil
	})
	b := batcher.New[result](eng, store, batcher.Options{Name: "tiered"})
	defer b.Dispose()

	req := []batcher.Item{batcher.NewItem("First one."), batcher.NewItem("Second one.")}
	for i := 0; i < 3; i++ {
		if _, err := b.Minimal().Resolve(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Errorf("expected one engine call, got %d", calls)
	}
}

func redisClient(t *testing.T) *pkgredis.Client {
	t.Helper()
	addr := os.Getenv("SA_REDIS_ADDR")
	if addr == "" {
		t.Skip("SA_REDIS_ADDR not set, skipping Redis test")
	}
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, PoolSize: 4})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRoundTrip(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	r := NewRedis[result](client, "test:"+time.Now().Format("150405.000"), time.Minute)
	defer r.Clear(ctx)

	item := batcher.NewItem("Stored in redis.")
	if _, ok := r.Get(ctx, item); ok {
		t.Fatal("expected miss")
	}
	r.Put(ctx, map[batcher.Item]result{item: {Words: 3, Note: "x"}})
	got, ok := r.Get(ctx, item)
	if !ok || got.Words != 3 || got.Note != "x" {
		t.Fatalf("unexpected %+v (ok=%v)", got, ok)
	}
	if err := r.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get(ctx, item); ok {
		t.Error("expected miss after clear")
	}
}
