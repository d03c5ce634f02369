package gpio

import (
	"errors"
	"testing"
)

func TestFakeIORead(t *testing.T) {
	f := NewFakeIO()
	f.Script(DefaultPinPedestrian, false, true, true)

	want := []bool{false, true, true, true}
	for i, w := range want {
		got, err := f.Read(DefaultPinPedestrian)
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("sample %d: expected %v, got %v", i, w, got)
		}
	}
}

func TestFakeIOUnscriptedReadsIdle(t *testing.T) {
	f := NewFakeIO()

	got, err := f.Read(DefaultPinVehicle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("unscripted input should read idle")
	}
}

func TestFakeIOLinesIndependent(t *testing.T) {
	f := NewFakeIO()
	f.Script(DefaultPinPedestrian, true, false)
	f.Set(DefaultPinVehicle, true)

	f.Read(DefaultPinPedestrian)
	v, _ := f.Read(DefaultPinVehicle)
	if !v {
		t.Error("vehicle line should be held active")
	}
	p, _ := f.Read(DefaultPinPedestrian)
	if p {
		t.Error("pedestrian line should have advanced to its second sample")
	}
}

func TestFakeIOReadError(t *testing.T) {
	f := NewFakeIO()
	f.ReadError = errors.New("simulated error")

	_, err := f.Read(DefaultPinPedestrian)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeIOWrite(t *testing.T) {
	f := NewFakeIO()

	if err := f.Write(DefaultPinPrimaryGreen, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Write(DefaultPinPrimaryRed, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.Output(DefaultPinPrimaryGreen) {
		t.Error("primary green should be on")
	}
	if f.Output(DefaultPinPrimaryRed) {
		t.Error("primary red should be off")
	}
	if f.WriteCount() != 2 {
		t.Errorf("expected 2 writes, got %d", f.WriteCount())
	}
	if f.Writes[0] != (Write{Line: DefaultPinPrimaryGreen, On: true}) {
		t.Errorf("unexpected first write: %+v", f.Writes[0])
	}
}

func TestFakeIOWriteError(t *testing.T) {
	f := NewFakeIO()
	f.WriteError = errors.New("simulated error")

	if err := f.Write(DefaultPinPrimaryGreen, true); err == nil {
		t.Error("expected error to be returned")
	}
	if f.WriteCount() != 0 {
		t.Error("failed write should not be recorded")
	}
}

func TestFakeIOClose(t *testing.T) {
	f := NewFakeIO()

	if f.Closed {
		t.Error("should not be closed initially")
	}

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if err := f.Write(DefaultPinPrimaryGreen, true); err == nil {
		t.Error("write after close should fail")
	}
}

func TestFakeIOReset(t *testing.T) {
	f := NewFakeIO()
	f.Script(DefaultPinPedestrian, true, false)
	f.Read(DefaultPinPedestrian)
	f.Write(DefaultPinPrimaryGreen, true)

	f.Reset()

	v, _ := f.Read(DefaultPinPedestrian)
	if !v {
		t.Error("after reset: expected first sample again")
	}
	if f.WriteCount() != 0 {
		t.Error("after reset: writes should be cleared")
	}
}
