package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func newTestMemoryStore(clock *testClock, notifier VerificationCodeNotifier) *InMemoryVerificationCodeStore {
	return NewInMemoryVerificationCodeStore(DefaultVerificationCodeTTL, notifier, discardLogger(), WithVerificationClock(clock.Now))
}

func TestInMemoryVerificationCodeGenerateFormatAndNotify(t *testing.T) {
	clock := newTestClock()
	notifier := &recordingNotifier{}
	store := newTestMemoryStore(clock, notifier)

	code, err := store.Generate(context.Background(), VerificationOwnerKey(PurposeRegister, "U@X.com "))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != VerificationCodeDigits {
		t.Fatalf("expected %d digits, got %q", VerificationCodeDigits, code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("expected digits only, got %q", code)
		}
	}

	sent, ok := notifier.last()
	if !ok {
		t.Fatal("expected a notification")
	}
	if sent.Code != code || sent.Recipient != "u@x.com" || sent.Purpose != PurposeRegister {
		t.Fatalf("unexpected notification %+v", sent)
	}
	if !sent.ExpiresAt.Equal(clock.Now().Add(DefaultVerificationCodeTTL)) {
		t.Fatalf("unexpected expiry %v", sent.ExpiresAt)
	}
}

func TestInMemoryVerificationCodeSingleUse(t *testing.T) {
	store := newTestMemoryStore(newTestClock(), nil)
	ctx := context.Background()

	code, err := store.Generate(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ok, err := store.Verify(ctx, "u@x.com", code); err != nil || !ok {
		t.Fatalf("expected first verify to succeed, ok=%v err=%v", ok, err)
	}
	if ok, _ := store.Verify(ctx, "u@x.com", code); ok {
		t.Fatal("expected second verify to fail")
	}
	if store.Len() != 0 {
		t.Fatalf("expected consumed record to be removed, len=%d", store.Len())
	}
}

func TestInMemoryVerificationCodeSupersede(t *testing.T) {
	store := newTestMemoryStore(newTestClock(), nil)
	ctx := context.Background()

	first, _ := store.Generate(ctx, "a")
	var second string
	for {
		second, _ = store.Generate(ctx, "a")
		if second != first {
			break
		}
	}
	if ok, _ := store.Verify(ctx, "a", first); ok {
		t.Fatal("expected superseded code to be rejected")
	}
	if ok, _ := store.Verify(ctx, "a", second); !ok {
		t.Fatal("expected latest code to verify")
	}
}

func TestInMemoryVerificationCodeMismatchKeepsRecord(t *testing.T) {
	store := newTestMemoryStore(newTestClock(), nil)
	ctx := context.Background()

	code, _ := store.Generate(ctx, "a")
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	if ok, _ := store.Verify(ctx, "a", wrong); ok {
		t.Fatal("expected wrong code to fail")
	}
	if ok, _ := store.Verify(ctx, "b", code); ok {
		t.Fatal("expected code bound to another owner to fail")
	}
	if ok, _ := store.Verify(ctx, "a", code); !ok {
		t.Fatal("expected correct code to still verify after a mismatch")
	}
}

func TestInMemoryVerificationCodeExpiry(t *testing.T) {
	clock := newTestClock()
	store := newTestMemoryStore(clock, nil)
	ctx := context.Background()

	code, _ := store.Generate(ctx, "a")
	clock.Advance(DefaultVerificationCodeTTL)
	if ok, _ := store.Verify(ctx, "a", code); !ok {
		t.Fatal("expected code to be valid exactly at the TTL boundary")
	}

	code, _ = store.Generate(ctx, "a")
	clock.Advance(DefaultVerificationCodeTTL + time.Millisecond)
	if ok, _ := store.Verify(ctx, "a", code); ok {
		t.Fatal("expected expired code to be rejected")
	}
	if store.Len() != 0 {
		t.Fatal("expected expired record to be dropped on sight")
	}
}

func TestInMemoryVerificationCodeConcurrentVerifyHasOneWinner(t *testing.T) {
	store := newTestMemoryStore(newTestClock(), nil)
	ctx := context.Background()
	code, err := store.Generate(ctx, "u@x.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	const callers = 64
	var wins atomic.Int32
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			ok, err := store.Verify(ctx, "u@x.com", code)
			if err != nil {
				return err
			}
			if ok {
				wins.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one successful verify, got %d", got)
	}
}

func TestInMemoryVerificationCodeNotifierFailureKeepsRecord(t *testing.T) {
	notifier := &recordingNotifier{err: errNotifierDown}
	store := newTestMemoryStore(newTestClock(), notifier)
	ctx := context.Background()

	code, err := store.Generate(ctx, "a")
	if err != nil {
		t.Fatalf("delivery failure must not surface, got %v", err)
	}
	if ok, _ := store.Verify(ctx, "a", code); !ok {
		t.Fatal("expected record to stay valid after failed delivery")
	}
}

func TestInMemoryVerificationCodeRejectsEmptyInput(t *testing.T) {
	store := newTestMemoryStore(newTestClock(), nil)
	ctx := context.Background()
	if _, err := store.Generate(ctx, "  "); !errors.Is(err, ErrInvalidOwnerKey) {
		t.Fatalf("expected ErrInvalidOwnerKey, got %v", err)
	}
	if ok, err := store.Verify(ctx, "a", ""); ok || err != nil {
		t.Fatalf("expected false without error, ok=%v err=%v", ok, err)
	}
	if ok, err := store.Verify(ctx, "missing", "123456"); ok || err != nil {
		t.Fatalf("expected false for unknown owner, ok=%v err=%v", ok, err)
	}
}

func TestInMemoryVerificationCodeSweepRemovesOnlyExpired(t *testing.T) {
	clock := newTestClock()
	store := newTestMemoryStore(clock, nil)
	ctx := context.Background()

	_, _ = store.Generate(ctx, "old")
	clock.Advance(10 * time.Minute)
	fresh, _ := store.Generate(ctx, "fresh")
	clock.Advance(6 * time.Minute)

	if removed := store.Sweep(ctx); removed != 1 {
		t.Fatalf("expected one expired record removed, got %d", removed)
	}
	if ok, _ := store.Verify(ctx, "fresh", fresh); !ok {
		t.Fatal("expected live record to survive the sweep")
	}
}

func TestInMemoryVerificationCodeRunCleanupStopsOnCancel(t *testing.T) {
	store := newTestMemoryStore(newTestClock(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup loop did not stop after cancel")
	}
}

func TestVerificationOwnerKeyNamespacesPurpose(t *testing.T) {
	reg := VerificationOwnerKey(PurposeRegister, " Player@Example.com")
	reset := VerificationOwnerKey(PurposePasswordReset, "player@example.com")
	if reg == reset {
		t.Fatal("expected purposes to produce distinct owner keys")
	}
	purpose, recipient := splitOwnerKey(reset)
	if purpose != PurposePasswordReset || recipient != "player@example.com" {
		t.Fatalf("unexpected split %q %q", purpose, recipient)
	}
	if purpose, recipient := splitOwnerKey("plain@example.com"); purpose != "" || recipient != "plain@example.com" {
		t.Fatalf("unexpected split for plain key %q %q", purpose, recipient)
	}
}
