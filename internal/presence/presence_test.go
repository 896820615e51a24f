package presence

import "testing"

func TestSetAndGet(t *testing.T) {
	r := New()
	if _, ok := r.Get("alice"); ok {
		t.Fatal("expected no record before Set")
	}

	r.Set("alice", true, false, 100)
	rec, ok := r.Get("alice")
	if !ok {
		t.Fatal("expected record after Set")
	}
	if !rec.InGame || rec.HavePass || rec.UpdatedAt != 100 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestInGameMissingUserIsFalse(t *testing.T) {
	r := New()
	if r.InGame("bob") {
		t.Fatal("missing user should not be in-game")
	}
}

func TestSetOverwrites(t *testing.T) {
	r := New()
	r.Set("alice", true, true, 1)
	r.Set("alice", false, true, 2)

	rec, _ := r.Get("alice")
	if rec.InGame {
		t.Fatal("expected overwritten InGame=false")
	}
}
