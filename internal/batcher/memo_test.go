package batcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testScope struct {
	id, stamp string
	texts     []string
}

func (s testScope) ScopeID() string      { return s.id }
func (s testScope) VersionStamp() string { return s.stamp }

func countingBuilder(builds *atomic.Int32) PoolBuilder[testScope] {
	return func(s testScope) []Item {
		builds.Add(1)
		time.Sleep(time.Millisecond)
		return items(s.texts...)
	}
}

func TestMemoReusesSession(t *testing.T) {
	b, _ := newTestBatcher(t, &recorder{}, 32)
	var builds atomic.Int32
	memo, err := NewMemo(b, 4, countingBuilder(&builds))
	if err != nil {
		t.Fatal(err)
	}
	scope := testScope{id: "doc", stamp: "v1", texts: []string{"One.", "Two."}}
	first := memo.ForScope(scope)
	second := memo.ForScope(scope)
	if first != second {
		t.Error("same stamp must reuse the session")
	}
	if builds.Load() != 1 {
		t.Errorf("expected one pool build, got %d", builds.Load())
	}
	if first.Pool().Len() != 2 {
		t.Errorf("expected pool of 2, got %d", first.Pool().Len())
	}
}

func TestMemoRebuildKeepsCachedResults(t *testing.T) {
	eng := &recorder{}
	b, _ := newTestBatcher(t, eng, 32)
	var builds atomic.Int32
	memo, _ := NewMemo(b, 4, countingBuilder(&builds))

	v1 := testScope{id: "doc", stamp: "v1", texts: []string{"Kept one.", "Kept two."}}
	old := memo.ForScope(v1)
	if _, err := old.Resolve(context.Background(), items("Kept one.")); err != nil {
		t.Fatal(err)
	}
	if len(eng.calls()) != 1 {
		t.Fatalf("expected one engine call, got %d", len(eng.calls()))
	}

	v2 := testScope{id: "doc", stamp: "v2", texts: []string{"Kept one.", "Kept two.", "New three."}}
	session := memo.ForScope(v2)
	if session == old {
		t.Fatal("changed stamp must produce a new session")
	}
	res, err := session.Resolve(context.Background(), items("Kept one.", "Kept two."))
	if err != nil {
		t.Fatal(err)
	}
	if res[NewItem("Kept two.")] == nil {
		t.Error("expected result for unchanged sentence")
	}
	if len(eng.calls()) != 1 {
		t.Errorf("unchanged sentences must be cache hits after rebuild, got %d engine calls", len(eng.calls()))
	}
}

func TestMemoCoalescesConcurrentBuilds(t *testing.T) {
	b, _ := newTestBatcher(t, &recorder{}, 32)
	var builds atomic.Int32
	memo, _ := NewMemo(b, 4, countingBuilder(&builds))
	scope := testScope{id: "doc", stamp: "v1", texts: []string{"One."}}

	var wg sync.WaitGroup
	sessions := make([]*Session[int], 16)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = memo.ForScope(scope)
		}(i)
	}
	wg.Wait()
	for _, s := range sessions[1:] {
		if s != sessions[0] {
			t.Fatal("concurrent callers must share one session")
		}
	}
	if builds.Load() != 1 {
		t.Errorf("expected one build, got %d", builds.Load())
	}
}

func TestMemoBoundedAndForget(t *testing.T) {
	b, _ := newTestBatcher(t, &recorder{}, 32)
	var builds atomic.Int32
	memo, _ := NewMemo(b, 1, countingBuilder(&builds))

	memo.ForScope(testScope{id: "a", stamp: "1"})
	memo.ForScope(testScope{id: "b", stamp: "1"})
	if memo.Len() != 1 {
		t.Errorf("expected capacity 1 to hold one scope, got %d", memo.Len())
	}
	memo.Forget("b")
	if memo.Len() != 0 {
		t.Errorf("expected empty memo after forget, got %d", memo.Len())
	}
	memo.ForScope(testScope{id: "a", stamp: "1"})
	if builds.Load() != 3 {
		t.Errorf("evicted scope must be rebuilt, got %d builds", builds.Load())
	}
}

func TestMemoKeepsNewerVersion(t *testing.T) {
	b, _ := newTestBatcher(t, &recorder{}, 32)
	building := make(chan struct{})
	release := make(chan struct{})
	var builds atomic.Int32
	memo, _ := NewMemo(b, 4, func(s testScope) []Item {
		builds.Add(1)
		if s.stamp == "v1" {
			close(building)
			<-release
		}
		return items(s.texts...)
	})

	v1 := testScope{id: "doc", stamp: "v1", texts: []string{"Old."}}
	v2 := testScope{id: "doc", stamp: "v2", texts: []string{"New."}}

	slow := make(chan *Session[int], 1)
	go func() { slow <- memo.ForScope(v1) }()
	<-building

	current := memo.ForScope(v2)
	close(release)
	if stale := <-slow; stale == current || stale.Pool().Len() != 1 {
		t.Fatal("the slow caller must still get a session for its own version")
	}

	if again := memo.ForScope(v2); again != current {
		t.Error("a late build of an older version must not replace the newer session")
	}
	if builds.Load() != 2 {
		t.Errorf("expected two builds, got %d", builds.Load())
	}
}
