package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"lobby/internal/clock"
	"lobby/internal/ratelimit"
)

func testConfig() Config {
	return Config{
		SessionTTLMS:    120_000,
		RadioTTLMS:      300_000,
		StateTTLMS:      25_000,
		StateMinGapMS:   700,
		WebTokenTTLMS:   600_000,
		JoinDedupMS:     10_000,
		MuteDedupMS:     1_500,
		PushHeartbeatMS: 20_000,
		MaxSSEPerUser:   3,
		MaxSSEPerIP:     10,
	}
}

func newTestState() (*State, *clock.Fake) {
	fake := clock.NewFake(0)
	s := New(testConfig(), fake, "test-secret", ratelimit.DefaultQuotas())
	return s, fake
}

// TestHappyPairing covers the plain issue-then-redeem path.
func TestHappyPairing(t *testing.T) {
	s, fake := newTestState()
	s.Presence.Set("alice", true, false, fake.NowMS())

	res, err := s.IssueCode("alice", false, fake.NowMS())
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if len(res.Code) != 7 {
		t.Fatalf("code = %q, want length 7", res.Code)
	}

	redeemed, outcome := s.RedeemCode(res.Code, fake.NowMS())
	if outcome != RedeemOK {
		t.Fatalf("outcome = %v, want RedeemOK", outcome)
	}
	if redeemed.Username != "alice" || redeemed.Token == "" {
		t.Fatalf("unexpected redeem result: %+v", redeemed)
	}
}

// TestRepairRevokesOldToken covers re-issuing a code for a user who already
// holds a live token: the old token must be revoked and the new one valid.
func TestRepairRevokesOldToken(t *testing.T) {
	s, fake := newTestState()
	s.Presence.Set("alice", true, false, fake.NowMS())

	first, err := s.IssueCode("alice", false, fake.NowMS())
	if err != nil {
		t.Fatalf("first IssueCode: %v", err)
	}
	redeemed1, _ := s.RedeemCode(first.Code, fake.NowMS())
	token1 := redeemed1.Token

	fake.Advance(1)
	second, err := s.IssueCode("alice", false, fake.NowMS())
	if err != nil {
		t.Fatalf("second IssueCode: %v", err)
	}

	if _, kind := s.Token.Verify(token1, fake.NowMS(), s.RevokedAt); kind != "token_revoked" {
		t.Fatalf("old token kind = %q, want token_revoked", kind)
	}

	redeemed2, outcome := s.RedeemCode(second.Code, fake.NowMS())
	if outcome != RedeemOK || redeemed2.Token == "" {
		t.Fatalf("second redeem failed: outcome=%v result=%+v", outcome, redeemed2)
	}
	if _, kind := s.Token.Verify(redeemed2.Token, fake.NowMS(), s.RevokedAt); kind != "" {
		t.Fatalf("new token kind = %q, want valid", kind)
	}
}

// TestNotInGameGating covers a caller that passed the shared-key check:
// issuing still succeeds, but redemption against a user who is not in-game
// fails. The not-in-game gate applies to redeem; /session/create applies
// its own separate check via the API layer, consulting Presence before
// calling IssueCode at all.
func TestNotInGameGating(t *testing.T) {
	s, fake := newTestState()
	s.Presence.Set("bob", false, false, fake.NowMS())

	res, err := s.IssueCode("bob", false, fake.NowMS())
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	_, outcome := s.RedeemCode(res.Code, fake.NowMS())
	if outcome != RedeemNotInGame {
		t.Fatalf("outcome = %v, want RedeemNotInGame", outcome)
	}
}

func TestRedeemDeletesCodeEvenWhenNotInGame(t *testing.T) {
	s, fake := newTestState()
	s.Presence.Set("bob", false, false, fake.NowMS())

	res, _ := s.IssueCode("bob", false, fake.NowMS())
	s.RedeemCode(res.Code, fake.NowMS())

	if _, outcome := s.RedeemCode(res.Code, fake.NowMS()); outcome != RedeemInvalidOrExpired {
		t.Fatalf("second redeem outcome = %v, want RedeemInvalidOrExpired (code already consumed)", outcome)
	}
}

func TestIssueCodePublishesKickEvent(t *testing.T) {
	s, fake := newTestState()
	s.Presence.Set("alice", true, false, fake.NowMS())

	sub, ok := s.PushHub.Register("h1", "alice", "1.1.1.1")
	if !ok {
		t.Fatal("subscriber registration should succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan string, 4)
	done := make(chan struct{})
	go func() {
		s.PushHub.Run(ctx, sub, func(b []byte) error {
			frames <- string(b)
			return nil
		})
		close(done)
	}()

	s.IssueCode("alice", false, fake.NowMS())

	select {
	case frame := <-frames:
		if !strings.Contains(frame, "KICK") {
			t.Fatalf("expected a KICK frame, got %s", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a KICK frame to be delivered")
	}

	cancel()
	<-done
}
