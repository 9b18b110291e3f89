package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/metrics"
)

var errEngine = errors.New("engine exploded")

// recorder is a test engine returning len(text) for every item. It records
// every batch and tracks how many calls overlap.
type recorder struct {
	mu       sync.Mutex
	batches  [][]Item
	inflight atomic.Int32
	peak     atomic.Int32

	delay   time.Duration
	started chan struct{}
	gate    chan struct{}
	failOn  map[string]bool
	omit    map[string]bool
	panicOn map[string]bool
}

func (r *recorder) Parse(ctx context.Context, items []Item) (map[Item]int, error) {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}

	r.mu.Lock()
	r.batches = append(r.batches, append([]Item(nil), items...))
	r.mu.Unlock()

	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	out := make(map[Item]int, len(items))
	for _, item := range items {
		if r.panicOn[item.Text] {
			panic("bad sentence")
		}
		if r.failOn[item.Text] {
			return nil, errEngine
		}
		if r.omit[item.Text] {
			continue
		}
		out[item] = len(item.Text)
	}
	return out, nil
}

func (r *recorder) calls() [][]Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]Item(nil), r.batches...)
}

func items(texts ...string) []Item {
	out := make([]Item, len(texts))
	for i, s := range texts {
		out[i] = NewItem(s)
	}
	return out
}

func texts(batch []Item) []string {
	out := make([]string, len(batch))
	for i, item := range batch {
		out[i] = item.Text
	}
	return out
}

func sameTexts(a []Item, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Text != b[i] {
			return false
		}
	}
	return true
}

func newTestBatcher(t *testing.T, eng Engine[int], size int) (*Batcher[int], *MapStore[int]) {
	t.Helper()
	store := NewMapStore[int]()
	b := New[int](eng, store, Options{Name: "test", Language: "en", BatchSize: size})
	t.Cleanup(func() {
		b.Dispose()
		b.Wait()
	})
	return b, store
}

var poolTexts = []string{"Alpha.", "Bravo.", "Charlie.", "Delta.", "Echo."}

func TestPrefetchForward(t *testing.T) {
	eng := &recorder{}
	b, _ := newTestBatcher(t, eng, 3)
	session := b.NewSession(NewPool(items(poolTexts...)))

	res, err := session.Resolve(context.Background(), items("Charlie."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := res[NewItem("Charlie.")]; v == nil || *v != len("Charlie.") {
		t.Fatalf("unexpected result %v", v)
	}
	if len(res) != 1 {
		t.Errorf("results must only hold requested items, got %d", len(res))
	}
	calls := eng.calls()
	if len(calls) != 1 || !sameTexts(calls[0], "Charlie.", "Delta.", "Echo.") {
		t.Fatalf("expected one batch [Charlie Delta Echo], got %v", calls)
	}

	if _, err := session.Resolve(context.Background(), items("Delta.")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eng.calls()) != 1 {
		t.Error("prefetched item must be served from the store")
	}
}

func TestPrefetchBackward(t *testing.T) {
	eng := &recorder{}
	b, _ := newTestBatcher(t, eng, 3)
	session := b.NewSession(NewPool(items(poolTexts...)))

	if _, err := session.Resolve(context.Background(), items("Echo.")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := eng.calls()
	if len(calls) != 1 || !sameTexts(calls[0], "Echo.", "Delta.", "Charlie.") {
		t.Fatalf("expected one batch [Echo Delta Charlie], got %v", calls)
	}
}

func TestPrefetchSkipsTrivialAndCached(t *testing.T) {
	eng := &recorder{}
	b, store := newTestBatcher(t, eng, 3)
	store.Put(context.Background(), map[Item]int{NewItem("Delta."): 1})
	session := b.NewSession(NewPool(items("Alpha.", "42", "Delta.", "Echo.", "Foxtrot.")))

	if _, err := session.Resolve(context.Background(), items("Alpha.")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := eng.calls()
	if len(calls) != 1 || !sameTexts(calls[0], "Alpha.", "Echo.", "Foxtrot.") {
		t.Fatalf("expected [Alpha Echo Foxtrot], got %v", calls)
	}
}

func TestBatchBound(t *testing.T) {
	eng := &recorder{}
	b, _ := newTestBatcher(t, eng, 3)
	var requested []Item
	for i := 0; i < 10; i++ {
		requested = append(requested, NewItem(fmt.Sprintf("Sentence number %d.", i)))
	}
	res, err := b.Minimal().Resolve(context.Background(), requested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, item := range requested {
		if res[item] == nil {
			t.Errorf("missing result for %v", item)
		}
	}
	calls := eng.calls()
	if len(calls) != 4 {
		t.Errorf("expected 4 batches, got %d", len(calls))
	}
	for _, batch := range calls {
		if len(batch) > 3 {
			t.Errorf("batch exceeds size: %v", texts(batch))
		}
	}
}

func TestTrivialNeverReachesEngine(t *testing.T) {
	eng := &recorder{}
	b, store := newTestBatcher(t, eng, 3)
	res, err := b.Minimal().Resolve(context.Background(), items("", "123", "..."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	for item, v := range res {
		if v != nil {
			t.Errorf("expected null result for %v", item)
		}
	}
	if len(eng.calls()) != 0 {
		t.Error("trivial items must not reach the engine")
	}
	if store.Len() != 0 {
		t.Error("null results must not be stored")
	}
}

func TestIdempotentResolve(t *testing.T) {
	eng := &recorder{}
	b, _ := newTestBatcher(t, eng, 32)
	req := items("One thing.", "Another thing.")
	session := b.NewSession(NewPool(req))
	first, err := session.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Minimal().Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eng.calls()) != 1 {
		t.Errorf("expected a single engine call, got %d", len(eng.calls()))
	}
	for _, item := range req {
		if *first[item] != *second[item] {
			t.Errorf("results differ for %v", item)
		}
	}
}

func TestDuplicateRequests(t *testing.T) {
	eng := &recorder{}
	b, _ := newTestBatcher(t, eng, 32)
	req := items("Same.", "Other.", "Same.")
	res, err := b.Minimal().Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ordered := res.InOrder(req)
	if len(ordered) != 3 || ordered[0] != ordered[2] || *ordered[1] != len("Other.") {
		t.Errorf("unexpected ordered results %v", ordered)
	}
	if calls := eng.calls(); len(calls) != 1 || len(calls[0]) != 2 {
		t.Errorf("duplicates must be analysed once, got %v", calls)
	}
}

func TestMissingResultIsNullAndNotCached(t *testing.T) {
	eng := &recorder{omit: map[string]bool{"Nothing.": true}}
	b, store := newTestBatcher(t, eng, 32)
	req := items("Nothing.", "Something.")
	res, err := b.Minimal().Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := res[req[0]]; !ok || v != nil {
		t.Errorf("expected present null result, got %v (present=%v)", v, ok)
	}
	if store.Len() != 1 {
		t.Errorf("expected only the non-null result stored, got %d", store.Len())
	}
}

func TestSingleFlight(t *testing.T) {
	eng := &recorder{delay: 5 * time.Millisecond}
	b, _ := newTestBatcher(t, eng, 2)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			req := items(fmt.Sprintf("Caller %d first.", g), fmt.Sprintf("Caller %d second.", g), fmt.Sprintf("Caller %d third.", g))
			res, err := b.Minimal().Resolve(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			for _, item := range req {
				if res[item] == nil {
					errs <- fmt.Errorf("missing result for %v", item)
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if peak := eng.peak.Load(); peak != 1 {
		t.Errorf("expected at most one engine call in flight, saw %d", peak)
	}
}

func TestEngineFailureKeepsEarlierBatches(t *testing.T) {
	eng := &recorder{failOn: map[string]bool{"Bad.": true}}
	b, store := newTestBatcher(t, eng, 1)
	req := items("Good.", "Bad.")

	_, err := b.Minimal().Resolve(context.Background(), req)
	if !errors.Is(err, errEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if _, ok := store.Get(context.Background(), req[0]); !ok {
		t.Error("result of the successful batch must stay cached")
	}
	if _, ok := store.Get(context.Background(), req[1]); ok {
		t.Error("failed batch must not be cached")
	}

	res, err := b.Minimal().Resolve(context.Background(), req[:1])
	if err != nil || res[req[0]] == nil {
		t.Fatalf("lock must be released after a failure: %v", err)
	}
}

func TestEnginePanicBecomesError(t *testing.T) {
	eng := &recorder{panicOn: map[string]bool{"Boom.": true}}
	b, _ := newTestBatcher(t, eng, 32)
	if _, err := b.Minimal().Resolve(context.Background(), items("Boom.")); err == nil {
		t.Fatal("expected an error from a panicking engine")
	}
	if _, err := b.Minimal().Resolve(context.Background(), items("Fine.")); err != nil {
		t.Fatalf("batcher must keep working after a panic: %v", err)
	}
}

func TestCallerCancellationStillCommits(t *testing.T) {
	eng := &recorder{started: make(chan struct{}, 1), gate: make(chan struct{})}
	b, store := newTestBatcher(t, eng, 32)
	session := b.NewSession(NewPool(items("Kept.", "Neighbour.")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := session.Resolve(ctx, items("Kept."))
		done <- err
	}()
	<-eng.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(eng.gate)
	b.Wait()
	if store.Len() != 2 {
		t.Errorf("abandoned batch must still commit, store has %d", store.Len())
	}
}

func TestCancelledWhileWaitingForLock(t *testing.T) {
	eng := &recorder{started: make(chan struct{}, 2), gate: make(chan struct{})}
	b, _ := newTestBatcher(t, eng, 32)

	go b.Minimal().Resolve(context.Background(), items("Holder."))
	<-eng.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Minimal().Resolve(ctx, items("Waiter."))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(eng.gate)
}

func TestDispose(t *testing.T) {
	eng := &recorder{started: make(chan struct{}, 2), gate: make(chan struct{})}
	b, _ := newTestBatcher(t, eng, 32)

	running := make(chan error, 1)
	waiting := make(chan error, 1)
	go func() {
		_, err := b.Minimal().Resolve(context.Background(), items("Running."))
		running <- err
	}()
	<-eng.started
	go func() {
		_, err := b.Minimal().Resolve(context.Background(), items("Waiting."))
		waiting <- err
	}()

	b.Dispose()
	if err := <-running; !errors.Is(err, ErrDisposed) {
		t.Errorf("running resolve: expected ErrDisposed, got %v", err)
	}
	if err := <-waiting; !errors.Is(err, ErrDisposed) {
		t.Errorf("waiting resolve: expected ErrDisposed, got %v", err)
	}
	if _, err := b.Minimal().Resolve(context.Background(), items("Later.")); !errors.Is(err, ErrDisposed) {
		t.Errorf("resolve after dispose: expected ErrDisposed, got %v", err)
	}
	b.Wait()
}

func TestClearCacheDuringBatch(t *testing.T) {
	eng := &recorder{started: make(chan struct{}, 1), gate: make(chan struct{})}
	b, store := newTestBatcher(t, eng, 32)
	store.Put(context.Background(), map[Item]int{NewItem("Old."): 1})

	done := make(chan Results[int], 1)
	go func() {
		res, _ := b.Minimal().Resolve(context.Background(), items("Fresh."))
		done <- res
	}()
	<-eng.started
	if err := b.ClearCache(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	close(eng.gate)

	res := <-done
	if res[NewItem("Fresh.")] == nil {
		t.Error("in-flight batch must still answer its caller")
	}
	if store.Len() != 0 {
		t.Errorf("in-flight batch must not repopulate a cleared store, got %d entries", store.Len())
	}

	if _, err := b.Minimal().Resolve(context.Background(), items("Fresh.")); err != nil {
		t.Fatal(err)
	}
	if store.Len() != 1 {
		t.Errorf("batches after the clear must be stored, got %d entries", store.Len())
	}
}

// slowPutStore holds the first Put until release is closed.
type slowPutStore struct {
	*MapStore[int]
	putting chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowPutStore) Put(ctx context.Context, results map[Item]int) {
	s.once.Do(func() {
		s.putting <- struct{}{}
		<-s.release
	})
	s.MapStore.Put(ctx, results)
}

func TestClearCacheWaitsForCommit(t *testing.T) {
	store := &slowPutStore{
		MapStore: NewMapStore[int](),
		putting:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	b := New[int](&recorder{}, store, Options{Name: "test", BatchSize: 4})
	defer func() {
		b.Dispose()
		b.Wait()
	}()

	resolved := make(chan error, 1)
	go func() {
		_, err := b.Minimal().Resolve(context.Background(), items("Racing."))
		resolved <- err
	}()
	<-store.putting

	cleared := make(chan error, 1)
	go func() { cleared <- b.ClearCache(context.Background()) }()
	select {
	case <-cleared:
		t.Fatal("clear must wait for the commit in progress")
	case <-time.After(20 * time.Millisecond):
	}

	close(store.release)
	if err := <-cleared; err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := <-resolved; err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("a clear must win over the commit it waited for, got %d entries", store.Len())
	}
}

func TestSingleFlightOverlappingRequests(t *testing.T) {
	eng := &recorder{delay: 2 * time.Millisecond}
	b, _ := newTestBatcher(t, eng, 4)

	shared := make([]string, 16)
	for i := range shared {
		shared[i] = fmt.Sprintf("Shared sentence %d.", i)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for g := 0; g < callers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rotated := append(append([]string(nil), shared[g*2:]...), shared[:g*2]...)
			req := items(rotated...)
			res, err := b.Minimal().Resolve(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			for _, item := range req {
				if v := res[item]; v == nil || *v != len(item.Text) {
					errs <- fmt.Errorf("wrong result for %v", item)
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	calls := eng.calls()
	if bound := (len(shared) + 3) / 4; len(calls) > bound {
		t.Errorf("expected at most %d engine calls, got %d", bound, len(calls))
	}
	seen := make(map[Item]int)
	for _, batch := range calls {
		for _, item := range batch {
			seen[item]++
		}
	}
	for item, n := range seen {
		if n != 1 {
			t.Errorf("%v analysed %d times", item, n)
		}
	}
}

func TestProgressCalledOncePerResolve(t *testing.T) {
	var calls atomic.Int32
	store := NewMapStore[int]()
	b := New[int](&recorder{}, store, Options{
		Name:      "test",
		BatchSize: 1,
		Progress:  func(context.Context, string) { calls.Add(1) },
	})
	defer b.Dispose()

	b.Minimal().Resolve(context.Background(), items("One.", "Two.", "Three."))
	if calls.Load() != 1 {
		t.Errorf("expected one progress call, got %d", calls.Load())
	}
	b.Minimal().Resolve(context.Background(), items("One."))
	if calls.Load() != 1 {
		t.Errorf("cache hits must not report progress, got %d", calls.Load())
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := New[int](&recorder{}, NewMapStore[int](), Options{Name: "metered", BatchSize: 4, Metrics: m})
	defer b.Dispose()

	session := b.NewSession(NewPool(items("A one.", "A two.", "A three.")))
	session.Resolve(context.Background(), items("A one.", "42"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{"engine_calls_total", "batch_size", "result_cache_lookups_total", "sessions_built_total"} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func BenchmarkResolveCached(b *testing.B) {
	store := NewMapStore[int]()
	bat := New[int](&recorder{}, store, Options{Name: "bench"})
	defer bat.Dispose()
	req := items("The quick brown fox.", "Jumps over.", "The lazy dog.")
	session := bat.NewSession(NewPool(req))
	session.Resolve(context.Background(), req)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		session.Resolve(context.Background(), req)
	}
}
