package progress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	mem "progresskit/adapters/memory"
	"progresskit/core"
	"progresskit/engine"
	"progresskit/integrations/webhook"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	eng := New(
		WithStore(mem.New()),
		WithDispatchMode(engine.DispatchSync),
	)
	defer eng.Close()

	ctx := context.Background()
	if err := eng.CreateUser(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	out, err := eng.Apply(ctx, core.NewFlashcardCreated("alice"))
	if err != nil {
		t.Fatal(err)
	}
	// 10 direct + 10 first_flashcard reward from the default catalog
	if out.XPGained != 20 {
		t.Fatalf("xp gained = %d", out.XPGained)
	}
}

func TestNewWithoutStoreFallsBackToMemory(t *testing.T) {
	eng := New(WithDispatchMode(engine.DispatchSync))
	defer eng.Close()

	ctx := context.Background()
	if err := eng.CreateUser(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Apply(ctx, core.NewCommentPosted("bob")); err != nil {
		t.Fatal(err)
	}
	st, err := eng.GetState(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if st.Counter(core.CounterCommentsPosted) != 1 {
		t.Fatalf("state: %+v", st)
	}
}

func TestWebhookBridge(t *testing.T) {
	var hits int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(b)
		_ = r.Body.Close()
	}))
	defer srv.Close()

	eng := New(
		WithStore(mem.New()),
		WithDispatchMode(engine.DispatchSync),
		WithWebhooks(webhook.New([]string{srv.URL})),
	)
	defer eng.Close()

	ctx := context.Background()
	if err := eng.CreateUser(ctx, "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Apply(ctx, core.NewFlashcardCreated("carol")); err != nil {
		t.Fatal(err)
	}

	// xp_gained + badge_unlocked at minimum
	if atomic.LoadInt32(&hits) < 2 {
		t.Fatalf("webhook hits = %d", hits)
	}
	var n core.Notification
	if err := json.Unmarshal(lastBody.Load().([]byte), &n); err != nil {
		t.Fatal(err)
	}
	if n.UserID != "carol" {
		t.Fatalf("notification: %+v", n)
	}
}
