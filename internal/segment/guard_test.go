package segment

import "testing"

// These tests drive the utterance emission guard through FSM's own surface
// (Handle, DropCurrent, LeftoverFinal) plus the guard's unexported emit
// helpers, which are the guard's only two real callers. The guard exists as
// a second, independent check behind the FSM's start/end bookkeeping, so
// these tests force it into each terminal state directly rather than only
// through EPD event sequences that happen to reach it.

// A final already emitted for the current utterance suppresses a second
// final attempt on that same utterance.
func TestFSM_GuardSuppressesDuplicateFinal(t *testing.T) {
	f := New(DefaultConfig())
	feed(t, f, StatusSpeech, StatusSpeech, StatusSpeech)

	first := f.emitFinal()
	if first == nil {
		t.Fatal("expected the first final to be emitted")
	}
	if f.guard != utteranceFinalEmitted {
		t.Fatalf("expected guard=utteranceFinalEmitted, got %v", f.guard)
	}

	second := f.emitFinal()
	if second != nil {
		t.Errorf("expected a second final on the same utterance to be suppressed, got %+v", second)
	}
}

// Once a final has been emitted for an utterance, a partial for that same
// utterance is suppressed rather than delivered out of order.
func TestFSM_GuardSuppressesPartialAfterFinal(t *testing.T) {
	f := New(DefaultConfig())
	feed(t, f, StatusSpeech, StatusSpeech, StatusSpeech)

	if f.emitFinal() == nil {
		t.Fatal("expected final to be emitted")
	}

	if partial := f.emitPartial(); partial != nil {
		t.Errorf("expected partial after final to be suppressed, got %+v", partial)
	}
}

// reset(), which runs after every EPD_END or long pause, closes the guard so
// any emit attempt against the stale utterance is suppressed.
func TestFSM_GuardClosedAfterReset(t *testing.T) {
	f := New(DefaultConfig())
	feed(t, f, StatusSpeech, StatusSpeech, StatusSpeech)
	f.reset()

	if f.guard != utteranceClosed {
		t.Fatalf("expected guard=utteranceClosed after reset, got %v", f.guard)
	}
	if e := f.emitPartial(); e != nil {
		t.Errorf("expected partial against a closed utterance to be suppressed, got %+v", e)
	}
	if e := f.emitFinal(); e != nil {
		t.Errorf("expected final against a closed utterance to be suppressed, got %+v", e)
	}
}

// A fresh speech event reopens the guard for the new utterance, independent
// of how the previous one ended.
func TestFSM_GuardReopensOnNextUtterance(t *testing.T) {
	f := New(DefaultConfig())
	feed(t, f, StatusSpeech, StatusSpeech, StatusSpeech)
	if f.emitFinal() == nil {
		t.Fatal("expected final to be emitted")
	}
	f.reset()

	feed(t, f, StatusSpeech)
	if f.guard != utteranceOpen {
		t.Fatalf("expected guard=utteranceOpen for the new utterance, got %v", f.guard)
	}
}

// DropCurrent only drops an open utterance: one that already has a final,
// or is closed or already dropped, reports no further drop occurred.
func TestFSM_DropCurrentIsIdempotentAfterFinal(t *testing.T) {
	f := New(DefaultConfig())
	feed(t, f, StatusSpeech, StatusSpeech, StatusSpeech)
	if f.emitFinal() == nil {
		t.Fatal("expected final to be emitted")
	}

	if f.DropCurrent() {
		t.Error("expected DropCurrent on an utterance with a final already emitted to report no drop")
	}
}

func TestFSM_DropCurrentIsIdempotentOnSecondCall(t *testing.T) {
	f := New(DefaultConfig())
	feed(t, f, StatusSpeech, StatusSpeech, StatusSpeech)

	if !f.DropCurrent() {
		t.Fatal("expected the first DropCurrent on an open utterance to report a drop")
	}
	if f.DropCurrent() {
		t.Error("expected a second DropCurrent call to report no further drop")
	}
}

// Through the public Handle/LeftoverFinal surface: two consecutive long
// pauses without any intervening speech can never both emit a final, since
// the first pause's reset leaves no utterance open for the second.
func TestFSM_GuardUnreachableViaHandleAfterLongPause(t *testing.T) {
	f := New(DefaultConfig())
	statuses := make([]int, 55)
	for i := range statuses {
		statuses[i] = StatusSpeech
	}
	feed(t, f, statuses...)

	emissions := feed(t, f, StatusPause, StatusPause)
	finals := 0
	for _, e := range emissions {
		if e.IsFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("expected exactly one final across both pauses, got %d: %+v", finals, emissions)
	}
}
