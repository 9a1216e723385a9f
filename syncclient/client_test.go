package syncclient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"drawing-board/protocol"
	"drawing-board/shape"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []protocol.Message
	err  error
}

func (f *fakeTransport) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeTransport) messages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.sent...)
}

type fakeHistory struct {
	entries []Entry
	err     error
}

func (f fakeHistory) Fetch(context.Context, protocol.RoomID) ([]Entry, error) {
	return f.entries, f.err
}

func chatEntry(t *testing.T, s shape.Shape) Entry {
	t.Helper()
	body, err := protocol.EncodeChat(s)
	if err != nil {
		t.Fatal(err)
	}
	return Entry{Type: protocol.TypeChat, Message: body}
}

func chatMsg(t *testing.T, room protocol.RoomID, s shape.Shape) protocol.Message {
	t.Helper()
	return protocol.Chat(room, chatEntry(t, s).Message)
}

func ids(shapes []shape.Shape) []string {
	out := make([]string, len(shapes))
	for i, s := range shapes {
		out[i] = s.ShapeID()
	}
	return out
}

func equalIDs(got []shape.Shape, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

var r1 = shape.Rectangle{ID: "r1", X: 10, Y: 10, Width: 50, Height: 30}

func TestCommitLocalAppliesRendersAndSends(t *testing.T) {
	tr := &fakeTransport{}
	renders := 0
	c := New("42", tr, nil, Options{OnRender: func([]shape.Shape) { renders++ }})
	c.CommitLocal(r1)

	if !equalIDs(c.Shapes(), "r1") || renders != 1 {
		t.Fatalf("shapes %v, renders %d", ids(c.Shapes()), renders)
	}
	sent := tr.messages()
	if len(sent) != 1 || sent[0].Type != protocol.TypeChat || sent[0].RoomID != "42" {
		t.Fatalf("sent %+v", sent)
	}
	got, err := protocol.DecodeChat(sent[0].Message)
	if err != nil || got != shape.Shape(r1) {
		t.Fatalf("chat carried %+v (%v)", got, err)
	}
}

func TestCommitLocalKeepsShapeWhenSendFails(t *testing.T) {
	tr := &fakeTransport{err: errors.New("offline")}
	c := New("42", tr, nil, Options{})
	c.CommitLocal(r1)
	if c.Collection().Len() != 1 {
		t.Fatalf("local echo should survive a failed send")
	}
}

func TestCommitLocalRejectsInvalid(t *testing.T) {
	tr := &fakeTransport{}
	c := New("42", tr, nil, Options{})
	c.CommitLocal(shape.Stroke{ID: "p1", Points: []shape.Point{{X: 1, Y: 1}}})
	c.CommitLocal(nil)
	if c.Collection().Len() != 0 || len(tr.messages()) != 0 {
		t.Fatalf("invalid shapes should be neither kept nor sent")
	}
}

func TestRemoteCommitThenDelete(t *testing.T) {
	c := New("42", nil, nil, Options{})
	c.OnRemoteEvent(chatMsg(t, "42", shape.Ellipse{ID: "e0", CenterX: 1, CenterY: 1, Radius: 9}))
	n := c.Collection().Len()

	c.OnRemoteEvent(chatMsg(t, "42", r1))
	if c.Collection().Len() != n+1 || !c.Collection().Contains("r1") {
		t.Fatalf("expected r1 to be added, have %v", ids(c.Shapes()))
	}
	c.OnRemoteEvent(protocol.DeleteShape("42", "r1"))
	if c.Collection().Len() != n || c.Collection().Contains("r1") {
		t.Fatalf("expected r1 to be removed, have %v", ids(c.Shapes()))
	}
	if !c.Collection().Contains("e0") {
		t.Fatalf("delete removed the wrong shape")
	}
}

func TestRemoteDuplicateIDReplacesInPlace(t *testing.T) {
	c := New("42", nil, nil, Options{})
	c.OnRemoteEvent(chatMsg(t, "42", r1))
	c.OnRemoteEvent(chatMsg(t, "42", shape.Label{ID: "l1", X: 1, Y: 1, Text: "hi", FontSize: 20}))
	moved := r1
	moved.X = 99
	c.OnRemoteEvent(chatMsg(t, "42", moved))
	if !equalIDs(c.Shapes(), "r1", "l1") {
		t.Fatalf("order %v", ids(c.Shapes()))
	}
	if got, _ := c.Collection().Get("r1"); got.(shape.Rectangle).X != 99 {
		t.Fatalf("later arrival should win, got %+v", got)
	}
}

func TestRemoteIgnoresOtherRoomsAndMalformed(t *testing.T) {
	renders := 0
	c := New("42", nil, nil, Options{OnRender: func([]shape.Shape) { renders++ }})
	c.OnRemoteEvent(chatMsg(t, "7", r1))
	c.OnRemoteEvent(protocol.Chat("42", "not json"))
	c.OnRemoteEvent(protocol.Chat("42", `{"shape":{"type":"hexagon","id":"h"}}`))
	if c.Collection().Len() != 0 || renders != 0 {
		t.Fatalf("expected nothing applied, have %v after %d renders", ids(c.Shapes()), renders)
	}
}

func TestRemoteClearEmpties(t *testing.T) {
	c := New("42", nil, nil, Options{})
	c.OnRemoteEvent(chatMsg(t, "42", r1))
	c.OnRemoteEvent(protocol.ClearCanvas("42"))
	if c.Collection().Len() != 0 {
		t.Fatalf("clear left %v", ids(c.Shapes()))
	}
}

func TestErrorEventReachesCallback(t *testing.T) {
	var reason string
	c := New("42", nil, nil, Options{OnError: func(r string) { reason = r }})
	c.OnRemoteEvent(protocol.Error("42", "failed to persist event"))
	if reason != "failed to persist event" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestClearAllAndDeleteLocalSend(t *testing.T) {
	tr := &fakeTransport{}
	c := New("42", tr, nil, Options{})
	c.CommitLocal(r1)
	if c.DeleteLocal("missing") {
		t.Fatalf("deleting a missing shape should report false")
	}
	if !c.DeleteLocal("r1") || c.Collection().Len() != 0 {
		t.Fatalf("delete failed")
	}
	c.ClearAll()
	sent := tr.messages()
	if len(sent) != 3 {
		t.Fatalf("sent %+v", sent)
	}
	if sent[1] != protocol.DeleteShape("42", "r1") || sent[2] != protocol.ClearCanvas("42") {
		t.Fatalf("sent %+v", sent)
	}
}

func TestReplayMatchesLiveApplication(t *testing.T) {
	shapes := []shape.Shape{
		r1,
		shape.Ellipse{ID: "e1", CenterX: 5, CenterY: 5, Radius: 10},
		shape.Stroke{ID: "p1", Points: []shape.Point{{X: 0, Y: 0}, {X: 3, Y: 4}}},
		shape.Label{ID: "l1", X: 1, Y: 21, Text: "note", FontSize: 20},
	}
	var entries []Entry
	live := New("42", nil, nil, Options{})
	for _, s := range shapes {
		entries = append(entries, chatEntry(t, s))
		live.OnRemoteEvent(chatMsg(t, "42", s))
	}
	entries = append(entries, Entry{Type: protocol.TypeDeleteShape, Message: "e1"})
	live.OnRemoteEvent(protocol.DeleteShape("42", "e1"))

	replayed := Replay(entries, nil)
	if !equalIDs(replayed, ids(live.Shapes())...) {
		t.Fatalf("replay %v != live %v", ids(replayed), ids(live.Shapes()))
	}
	for i, s := range live.Shapes() {
		if replayed[i] == nil || replayed[i].ShapeID() != s.ShapeID() {
			t.Fatalf("mismatch at %d", i)
		}
	}
}

func TestReplaySkipsMalformedAndHonoursClear(t *testing.T) {
	entries := []Entry{
		chatEntry(t, r1),
		{Type: protocol.TypeChat, Message: "{broken"},
		{Type: protocol.TypeClearCanvas},
		{Type: "", Message: chatEntry(t, shape.Ellipse{ID: "e1", Radius: 3}).Message},
		{Type: "mystery"},
	}
	if got := Replay(entries, nil); !equalIDs(got, "e1") {
		t.Fatalf("replay = %v", ids(got))
	}
}

func TestHydrateInstallsHistory(t *testing.T) {
	renders := 0
	h := fakeHistory{entries: []Entry{chatEntry(t, r1)}}
	c := New("42", nil, h, Options{OnRender: func([]shape.Shape) { renders++ }})
	if got := c.Hydrate(context.Background()); !equalIDs(got, "r1") {
		t.Fatalf("hydrated %v", ids(got))
	}
	if renders != 1 {
		t.Fatalf("renders = %d", renders)
	}
}

func TestHydrateFailureStartsEmpty(t *testing.T) {
	c := New("42", nil, fakeHistory{err: errors.New("503")}, Options{})
	if got := c.Hydrate(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty canvas, got %v", ids(got))
	}
}

func TestHydrationKeepsLiveEvents(t *testing.T) {
	h1 := shape.Rectangle{ID: "h1", Width: 10, Height: 10}
	h2 := shape.Rectangle{ID: "h2", Width: 10, Height: 10}
	c := New("42", nil, nil, Options{})

	c.BeginHydrate()
	c.OnRemoteEvent(chatMsg(t, "42", r1))
	c.OnRemoteEvent(protocol.DeleteShape("42", "h1"))
	got := c.Install([]shape.Shape{h1, h2})

	if !equalIDs(got, "h2", "r1") {
		t.Fatalf("merged %v, want [h2 r1]", ids(got))
	}
}

func TestHydrationAfterLiveClearIsDiscarded(t *testing.T) {
	c := New("42", nil, nil, Options{})
	c.BeginHydrate()
	c.OnRemoteEvent(protocol.ClearCanvas("42"))
	c.OnRemoteEvent(chatMsg(t, "42", r1))
	got := c.Install([]shape.Shape{shape.Rectangle{ID: "old", Width: 1, Height: 1}})
	if !equalIDs(got, "r1") {
		t.Fatalf("merged %v, want [r1]", ids(got))
	}
}

func TestRehydrationDropsShapesMissingFromLog(t *testing.T) {
	c := New("42", nil, fakeHistory{}, Options{})
	c.OnRemoteEvent(chatMsg(t, "42", r1))
	if got := c.Shapes(); !equalIDs(got, "r1") {
		t.Fatalf("before rehydration %v", ids(got))
	}
	// the room was cleared while this client was away
	if got := c.Hydrate(context.Background()); len(got) != 0 {
		t.Fatalf("rehydration kept %v, log is empty", ids(got))
	}
}

func TestRehydrationKeepsOnlyEventsFromTheWindow(t *testing.T) {
	stale := shape.Rectangle{ID: "stale", Width: 10, Height: 10}
	kept := shape.Rectangle{ID: "kept", Width: 10, Height: 10}
	moved := shape.Rectangle{ID: "kept", X: 100, Width: 10, Height: 10}
	c := New("42", nil, nil, Options{})
	c.OnRemoteEvent(chatMsg(t, "42", stale))
	c.OnRemoteEvent(chatMsg(t, "42", kept))

	c.BeginHydrate()
	c.OnRemoteEvent(chatMsg(t, "42", r1))
	c.OnRemoteEvent(chatMsg(t, "42", moved))
	got := c.Install([]shape.Shape{kept})

	if !equalIDs(got, "kept", "r1") {
		t.Fatalf("merged %v, want [kept r1]", ids(got))
	}
	if k, ok := got[0].(shape.Rectangle); !ok || k.X != 100 {
		t.Fatalf("live copy should win, got %+v", got[0])
	}
}

func TestRehydrationKeepsLocalCommitsFromTheWindow(t *testing.T) {
	tr := &fakeTransport{}
	c := New("42", tr, nil, Options{})
	c.CommitLocal(shape.Rectangle{ID: "old", Width: 10, Height: 10})
	c.BeginHydrate()
	c.CommitLocal(r1)
	if got := c.Install(nil); !equalIDs(got, "r1") {
		t.Fatalf("merged %v, want [r1]", ids(got))
	}
}
