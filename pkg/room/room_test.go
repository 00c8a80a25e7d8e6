package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/roomsync/pkg/engine"
	"github.com/vango-dev/roomsync/pkg/engine/records"
	"github.com/vango-dev/roomsync/pkg/storage"
)

func testOptions(interval time.Duration) Options {
	return Options{
		Factory:         records.Factory(records.WithLogger(discardLogger())),
		Schema:          engine.Schema{Name: "tldraw", Version: 1},
		PersistInterval: interval,
		WriteTimeout:    time.Second,
		Logger:          discardLogger(),
	}
}

func clientMsg(t *testing.T, msg records.ClientMessage) engine.Frame {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return engine.Frame{Kind: engine.FrameText, Data: data}
}

func pushShape(t *testing.T, id string, x int, clientClock int64) engine.Frame {
	t.Helper()
	state, _ := json.Marshal(map[string]any{"id": id, "typeName": "shape", "x": x})
	return clientMsg(t, records.ClientMessage{
		Type:        records.TypePush,
		ClientClock: clientClock,
		Diff:        &records.Diff{Put: map[string]json.RawMessage{id: state}},
	})
}

func serverMessages(t *testing.T, sock *fakeSocket, typ string) []records.ServerMessage {
	t.Helper()
	var out []records.ServerMessage
	for _, text := range sock.texts() {
		var m records.ServerMessage
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			t.Fatalf("decode %q: %v", text, err)
		}
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestRoom_SingleSessionPersistsOnce(t *testing.T) {
	store := newRecordingStore()
	opts := testOptions(40 * time.Millisecond)
	opts.Metrics = NewMetrics(nil)
	r, err := New(context.Background(), store, storage.WithPrefix(store, "instances/r1/"), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a := &fakeSocket{}
	if err := r.Accept(context.Background(), "r1", "s1", a); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	r.Message(a, clientMsg(t, records.ClientMessage{Type: records.TypeConnect}))
	r.Message(a, pushShape(t, "shape:f1", 10, 1))

	store.waitPut(t, "rooms/r1", 2*time.Second)
	time.Sleep(80 * time.Millisecond)

	if n := store.putCount("rooms/r1"); n != 1 {
		t.Fatalf("puts of rooms/r1 = %d, want 1", n)
	}
	blob, _ := store.MemoryStore.Get(context.Background(), "rooms/r1")
	if !strings.Contains(string(blob), `"shape:f1"`) {
		t.Errorf("snapshot %s does not contain the pushed record", blob)
	}
	if got := testutil.ToFloat64(opts.Metrics.snapshotWrites.WithLabelValues("ok")); got != 1 {
		t.Errorf("snapshot_writes_total{result=ok} = %v, want 1", got)
	}
}

func TestRoom_TwoSessionsSeeEachOther(t *testing.T) {
	store := storage.NewMemoryStore()
	r, err := New(context.Background(), store, storage.WithPrefix(store, "instances/r1/"), testOptions(time.Hour))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a, b := &fakeSocket{}, &fakeSocket{}
	for sid, sock := range map[string]*fakeSocket{"s1": a, "s2": b} {
		if err := r.Accept(context.Background(), "r1", sid, sock); err != nil {
			t.Fatalf("Accept(%s) error = %v", sid, err)
		}
		r.Message(sock, clientMsg(t, records.ClientMessage{Type: records.TypeConnect}))
	}

	r.Message(a, pushShape(t, "shape:a1", 1, 1))
	r.Message(a, pushShape(t, "shape:a2", 2, 2))
	r.Message(b, pushShape(t, "shape:b1", 3, 1))

	patchesB := serverMessages(t, b, records.TypePatch)
	if len(patchesB) != 2 {
		t.Fatalf("s2 got %d patches, want 2", len(patchesB))
	}
	if _, ok := patchesB[0].Diff.Put["shape:a1"]; !ok {
		t.Errorf("s2 first patch = %+v, want shape:a1", patchesB[0].Diff)
	}
	if _, ok := patchesB[1].Diff.Put["shape:a2"]; !ok {
		t.Errorf("s2 second patch = %+v, want shape:a2", patchesB[1].Diff)
	}

	patchesA := serverMessages(t, a, records.TypePatch)
	if len(patchesA) != 1 {
		t.Fatalf("s1 got %d patches, want 1", len(patchesA))
	}
	if _, ok := patchesA[0].Diff.Put["shape:b1"]; !ok {
		t.Errorf("s1 patch = %+v, want shape:b1", patchesA[0].Diff)
	}
	if r.Sessions() != 2 {
		t.Errorf("Sessions() = %d, want 2", r.Sessions())
	}
}

func TestRoom_ColdStartRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	state := storage.WithPrefix(store, "instances/r1/")
	ctx := context.Background()

	first, err := New(ctx, store, state, testOptions(time.Hour))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a := &fakeSocket{}
	first.Accept(ctx, "r1", "s1", a)
	first.Message(a, clientMsg(t, records.ClientMessage{Type: records.TypeConnect}))
	first.Message(a, pushShape(t, "shape:x", 5, 1))

	if err := first.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	eng, _ := first.Engine(ctx)
	want, _ := eng.CurrentSnapshot()

	// A new instance over the same storage knows its room and its state.
	second, err := New(ctx, store, state, testOptions(time.Hour))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if id, ok := second.ID(); !ok || id != "r1" {
		t.Fatalf("cold start ID() = %q, %v; want r1", id, ok)
	}
	eng2, err := second.Engine(ctx)
	if err != nil {
		t.Fatalf("cold start Engine() error = %v", err)
	}
	got, _ := eng2.CurrentSnapshot()
	if string(got) != string(want) {
		t.Errorf("cold start snapshot = %s, want %s", got, want)
	}
}

func TestRoom_EngineBeforeIdentified(t *testing.T) {
	store := storage.NewMemoryStore()
	r, _ := New(context.Background(), store, store, testOptions(time.Hour))

	if _, err := r.Engine(context.Background()); !errors.Is(err, ErrRoomNotIdentified) {
		t.Errorf("Engine() error = %v, want ErrRoomNotIdentified", err)
	}
	if r.String() != "room(unidentified)" {
		t.Errorf("String() = %q", r.String())
	}
}

func TestRoom_PersistFailureIsContained(t *testing.T) {
	store := newRecordingStore()
	opts := testOptions(20 * time.Millisecond)
	opts.Metrics = NewMetrics(nil)
	r, _ := New(context.Background(), store, storage.NewMemoryStore(), opts)

	a := &fakeSocket{}
	r.Accept(context.Background(), "r1", "s1", a)
	r.Message(a, clientMsg(t, records.ClientMessage{Type: records.TypeConnect}))

	store.setPutErr(errors.New("bucket down"))
	r.Message(a, pushShape(t, "shape:y", 1, 1))
	store.waitPut(t, "rooms/r1", 2*time.Second)

	// The mutation itself was committed.
	results := serverMessages(t, a, records.TypePushResult)
	if len(results) != 1 || results[0].Action != records.ActionCommit {
		t.Fatalf("push results = %+v", results)
	}
	eventually(t, time.Second, func() bool {
		return testutil.ToFloat64(opts.Metrics.snapshotWrites.WithLabelValues("error")) == 1
	}, "failed write counted")

	store.setPutErr(nil)
	r.Message(a, pushShape(t, "shape:y", 2, 2))
	store.waitPut(t, "rooms/r1", 2*time.Second)
	eventually(t, time.Second, func() bool {
		blob, _ := store.MemoryStore.Get(context.Background(), "rooms/r1")
		return blob != nil
	}, "next window writes the snapshot")
}

func TestRoom_ShutdownFlushesAndCloses(t *testing.T) {
	store := storage.NewMemoryStore()
	r, _ := New(context.Background(), store, storage.NewMemoryStore(), testOptions(time.Hour))

	a := &fakeSocket{}
	r.Accept(context.Background(), "r1", "s1", a)
	r.Message(a, clientMsg(t, records.ClientMessage{Type: records.TypeConnect}))
	r.Message(a, pushShape(t, "shape:z", 1, 1))

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if blob, _ := store.Get(context.Background(), "rooms/r1"); blob == nil {
		t.Error("Shutdown() did not write the pending snapshot")
	}
	if code, closed := a.closeCode(); !closed || code != CloseGoingAway {
		t.Errorf("socket close = %d, %v; want %d", code, closed, CloseGoingAway)
	}
}

func TestRoom_ShutdownLeavesNothingPending(t *testing.T) {
	store := newRecordingStore()
	r, _ := New(context.Background(), store, storage.NewMemoryStore(), testOptions(time.Hour))

	a := &fakeSocket{}
	r.Accept(context.Background(), "r1", "s1", a)
	r.Message(a, clientMsg(t, records.ClientMessage{Type: records.TypeConnect}))
	r.Message(a, pushShape(t, "shape:z", 1, 1))

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	// A frame the transport delivers after shutdown changes nothing.
	r.Message(a, pushShape(t, "shape:late", 2, 2))
	if r.scheduler.Armed() {
		t.Error("change armed a write after Shutdown")
	}
	if n := store.putCount("rooms/r1"); n != 1 {
		t.Errorf("snapshot writes = %d, want 1", n)
	}
	blob, _ := store.MemoryStore.Get(context.Background(), "rooms/r1")
	if !strings.Contains(string(blob), "shape:z") || strings.Contains(string(blob), "shape:late") {
		t.Errorf("final snapshot = %s", blob)
	}

	err := r.Accept(context.Background(), "r1", "s2", &fakeSocket{})
	if !errors.Is(err, ErrRoomClosed) {
		t.Errorf("Accept() after Shutdown error = %v, want ErrRoomClosed", err)
	}
}
