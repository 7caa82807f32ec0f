package circuitbreaker

import (
	"testing"
	"time"
)

func TestAllow_UnknownTarget_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	if err := cb.Allow("generator"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb := New(3, 5*time.Second)
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	if err := cb.Allow("generator"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb := New(3, 5*time.Second)
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	if err := cb.Allow("generator"); err == nil {
		t.Fatal("expected ErrCircuitOpen, got nil")
	}
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	time.Sleep(15 * time.Millisecond)
	if err := cb.Allow("generator"); err != nil {
		t.Fatalf("expected nil (probe allowed), got %v", err)
	}
	if err := cb.Allow("generator"); err == nil {
		t.Fatal("expected ErrCircuitOpen while half-open probe in flight")
	}
}

func TestRecordSuccess_ResetsToClose(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	time.Sleep(15 * time.Millisecond)
	cb.Allow("generator")
	cb.RecordSuccess("generator")
	if err := cb.Allow("generator"); err != nil {
		t.Fatalf("expected nil after reset, got %v", err)
	}
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb := New(3, 10*time.Millisecond)
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	time.Sleep(15 * time.Millisecond)
	cb.Allow("generator")
	cb.RecordFailure("generator")
	if err := cb.Allow("generator"); err == nil {
		t.Fatal("expected ErrCircuitOpen after probe failure re-open")
	}
}

func TestRecordSuccess_ClosedState_NoOp(t *testing.T) {
	cb := New(3, 5*time.Second)
	cb.RecordSuccess("generator")
	if err := cb.Allow("generator"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIndependentTargets(t *testing.T) {
	cb := New(2, 5*time.Second)
	cb.RecordFailure("generator")
	cb.RecordFailure("generator")
	if err := cb.Allow("generator"); err == nil {
		t.Fatal("expected generator open")
	}
	if err := cb.Allow("image_search"); err != nil {
		t.Fatalf("expected image_search allowed, got %v", err)
	}
}
