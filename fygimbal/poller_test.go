package fygimbal

import (
	"testing"
	"time"
)

func TestBatchLastPacketIsAlwaysARead(t *testing.T) {
	tr := NewValueTracker()
	now := time.Now()
	tr.RequestContinuous(1, TargetYaw, now)
	tr.WriteValue(2, TargetYaw, 10)

	batch := tr.BuildBatch(now)
	if len(batch) == 0 {
		t.Fatal("BuildBatch() returned no packets")
	}
	last := batch[len(batch)-1]
	if last.Command != CommandGetValue {
		t.Fatalf("last packet command = 0x%02X, want GET_VALUE", last.Command)
	}
	if len(batch) > MaxPacketsPerReadBatch {
		t.Fatalf("BuildBatch() returned %d packets, want <= %d", len(batch), MaxPacketsPerReadBatch)
	}
}

func TestContinuousRequestExpires(t *testing.T) {
	tr := NewValueTracker()
	now := time.Now()
	tr.RequestContinuous(1, TargetYaw, now)

	later := now.Add((MaxContinuousPollMillis + 100) * time.Millisecond)
	_, ok := tr.nextRead(later)
	if ok {
		t.Fatal("nextRead() returned a live address after the continuous poll window expired")
	}
}

func TestOnceRequestClearsAfterResponse(t *testing.T) {
	tr := NewValueTracker()
	now := time.Now()
	tr.RequestOnce(3, TargetYaw, now)

	batch := tr.BuildBatch(now)
	if len(batch) != 1 || batch[0].Command != CommandGetValue {
		t.Fatalf("BuildBatch() = %+v, want a single GET_VALUE read", batch)
	}

	index, value, ok := tr.HandleResponse([]byte{3, 7, 0}, now)
	if !ok || index != 3 || value != 7 {
		t.Fatalf("HandleResponse() = (%d, %d, %v), want (3, 7, true)", index, value, ok)
	}

	// Requesting the address again later should not find it still live
	// without a fresh request.
	later := now.Add(time.Second)
	if _, ok := tr.nextRead(later); ok {
		t.Fatal("nextRead() found a Once address live after its response cleared it")
	}
}

func TestContinuousOutranksOnce(t *testing.T) {
	tr := NewValueTracker()
	now := time.Now()
	tr.RequestContinuous(1, TargetYaw, now)
	tr.RequestOnce(1, TargetYaw, now)

	s := tr.states[address{1, TargetYaw}]
	if s.scope != ScopeContinuous {
		t.Fatalf("scope = %v, want ScopeContinuous to outrank a later Once request", s.scope)
	}
}
