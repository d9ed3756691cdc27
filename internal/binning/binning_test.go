package binning

import "testing"

func TestReg2BinSameSixteenKWindow(t *testing.T) {
	bin := Reg2Bin(100, 200)
	want := ((1<<15)-1)/7 + (100 >> 14)
	if bin != want {
		t.Fatalf("Reg2Bin(100,200) = %d, want %d", bin, want)
	}
}

func TestReg2BinWholeGenome(t *testing.T) {
	if got := Reg2Bin(0, 1<<30); got != 0 {
		t.Fatalf("Reg2Bin spanning the whole genome = %d, want 0", got)
	}
}

func TestReg2BinCrossingWindowBoundary(t *testing.T) {
	// [16383, 16385) straddles the first 16KiB window boundary, so it
	// must escalate past the finest bin level.
	a := Reg2Bin(16383, 16385)
	b := Reg2Bin(0, 100)
	if a == b {
		t.Fatalf("expected a coarser bin for a window-crossing region, got same bin %d", a)
	}
}

func TestVirtualOffsetRoundTrip(t *testing.T) {
	v := ToVirtualOffset(12345, 678)
	block, within := SplitVirtualOffset(v)
	if block != 12345 || within != 678 {
		t.Fatalf("round trip = (%d, %d), want (12345, 678)", block, within)
	}
}

func TestLinearWindow(t *testing.T) {
	if LinearWindow(0) != 0 {
		t.Fatalf("LinearWindow(0) = %d, want 0", LinearWindow(0))
	}
	if LinearWindow(16384) != 1 {
		t.Fatalf("LinearWindow(16384) = %d, want 1", LinearWindow(16384))
	}
}
