package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/batcher"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/internal/engine/local"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/proto"
)

type fakeCaller struct {
	lastReq proto.ParseRequest
	resp    proto.ParseResponse
	err     error
}

func (f *fakeCaller) Call(ctx context.Context, method string, params any, result any) error {
	if f.err != nil {
		return f.err
	}
	raw, _ := json.Marshal(params)
	json.Unmarshal(raw, &f.lastReq)
	data, _ := json.Marshal(f.resp)
	return json.Unmarshal(data, result)
}

func TestParseMapsAlignedResults(t *testing.T) {
	a := batcher.NewItem("Hello `x` world.", batcher.Range{Start: 6, End: 9})
	b := batcher.NewItem("Nothing here.")
	caller := &fakeCaller{resp: proto.ParseResponse{
		Results: []*proto.Analysis{{WordCount: 2}, nil},
	}}
	e := New(caller, "en")

	out, err := e.Parse(context.Background(), []batcher.Item{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := out[a]; !ok || got.WordCount != 2 {
		t.Errorf("expected result for first item, got %+v (present=%v)", got, ok)
	}
	if _, ok := out[b]; ok {
		t.Error("nil server result must leave the item out")
	}
	if caller.lastReq.Language != "en" {
		t.Errorf("expected language en, got %q", caller.lastReq.Language)
	}
	if ex := caller.lastReq.Sentences[0].Exclusions; len(ex) != 1 || ex[0].Start != 6 || ex[0].End != 9 {
		t.Errorf("exclusions not forwarded: %+v", ex)
	}
}

func TestParseRejectsMisalignedResponse(t *testing.T) {
	caller := &fakeCaller{resp: proto.ParseResponse{Results: []*proto.Analysis{{}}}}
	_, err := New(caller, "en").Parse(context.Background(), []batcher.Item{
		batcher.NewItem("One."), batcher.NewItem("Two."),
	})
	if err == nil {
		t.Fatal("expected an error for a short response")
	}
}

func TestParseWrapsTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := New(&fakeCaller{err: boom}, "en").Parse(context.Background(), []batcher.Item{batcher.NewItem("One.")})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
}

func TestRoundTripAgainstLocalServer(t *testing.T) {
	srv := grpc.NewServer()
	local.New("local").Register(srv)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	go srv.Serve("")
	defer srv.Stop()

	e, client, err := Dial(srv.Addr().String(), "en")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	item := batcher.NewItem("the the quick fox.")
	out, err := e.Parse(context.Background(), []batcher.Item{item})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := out[item]
	if !ok {
		t.Fatal("expected a result")
	}
	if got.WordCount != 4 || len(got.Findings) == 0 {
		t.Errorf("unexpected analysis %+v", got)
	}

	info, err := e.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(info.Languages) == 0 {
		t.Error("expected advertised languages")
	}
}
