package batcher

import (
	"context"
	"testing"
)

func TestBuilderNext(t *testing.T) {
	pool := NewPool(items("A a.", "B b.", "C c.", "D d.", "E e.", "F f."))
	tests := []struct {
		name      string
		size      int
		requested []string
		want      []string
	}{
		{"forward fill", 3, []string{"B b."}, []string{"B b.", "C c.", "D d."}},
		{"wraps backward", 4, []string{"E e."}, []string{"E e.", "F f.", "D d.", "C c."}},
		{"requested first", 3, []string{"F f.", "A a."}, []string{"F f.", "A a.", "E e."}},
		{"truncates requested", 2, []string{"A a.", "B b.", "C c."}, []string{"A a.", "B b."}},
		{"not in pool", 3, []string{"Z z."}, []string{"Z z."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bld := Builder[int]{Size: tt.size}
			resolved := make(Results[int])
			got := bld.Next(context.Background(), NewMapStore[int](), items(tt.requested...), pool, resolved)
			if !sameTexts(got, tt.want...) {
				t.Errorf("expected %v, got %v", tt.want, texts(got))
			}
		})
	}
}

func TestBuilderNilPool(t *testing.T) {
	got := Builder[int]{Size: 3}.Next(context.Background(), NewMapStore[int](), items("Solo."), nil, make(Results[int]))
	if !sameTexts(got, "Solo.") {
		t.Errorf("expected [Solo.], got %v", texts(got))
	}
}

func TestBuilderResolvesCheapItems(t *testing.T) {
	store := NewMapStore[int]()
	store.Put(context.Background(), map[Item]int{NewItem("Cached."): 9})
	resolved := make(Results[int])
	got := Builder[int]{Size: 3}.Next(context.Background(), store, items("Cached.", "", "Live."), nil, resolved)
	if !sameTexts(got, "Live.") {
		t.Errorf("expected [Live.], got %v", texts(got))
	}
	if v := resolved[NewItem("Cached.")]; v == nil || *v != 9 {
		t.Errorf("cached item must be resolved from the store, got %v", v)
	}
	if v, ok := resolved[NewItem("")]; !ok || v != nil {
		t.Error("trivial item must resolve to null")
	}
}

func TestPoolDedup(t *testing.T) {
	p := NewPool(items("A.", "B.", "A.", "C."))
	if p.Len() != 3 {
		t.Fatalf("expected 3 distinct items, got %d", p.Len())
	}
	if p.position(NewItem("C.")) != 2 {
		t.Errorf("expected C at 2, got %d", p.position(NewItem("C.")))
	}
	var nilPool *Pool
	if nilPool.Len() != 0 || nilPool.Items() != nil || nilPool.position(NewItem("A.")) != -1 {
		t.Error("nil pool must behave as empty")
	}
}
