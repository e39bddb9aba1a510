package vec

import (
	"math"
	"testing"
)

func TestLoadStoreGroup(t *testing.T) {
	buf := []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	v := Load(buf, 1)
	if v != (Vec4{4, 5, 6, 7}) {
		t.Fatalf("load group 1: got %v", v)
	}
	Vec4{-1, -2, -3, -4}.Store(buf, 2)
	want := []float32{0, 1, 2, 3, 4, 5, 6, 7, -1, -2, -3, -4}
	for i := range buf {
		if buf[i] != want[i] {
			t.Fatalf("buf[%d]=%v want %v", i, buf[i], want[i])
		}
	}
}

func TestSumFoldsLeftToRight(t *testing.T) {
	// 1e8 + 1 - 1e8 loses the 1 only when folded in this order.
	v := Vec4{1e8, 1, -1e8, 0}
	if got := v.Sum(); got != 0 {
		t.Fatalf("sum=%v want 0", got)
	}
	v = Vec4{1e8, -1e8, 1, 0}
	if got := v.Sum(); got != 1 {
		t.Fatalf("sum=%v want 1", got)
	}
}

func TestFMASingleRounding(t *testing.T) {
	a := float32(1) + float32(math.Ldexp(1, -12))
	c := -(float32(1) + float32(math.Ldexp(1, -11)))
	// a*a = 1 + 2^-11 + 2^-24; the last term only survives a fused operation.
	got := FMA32(a, a, c)
	want := float32(math.Ldexp(1, -24))
	if got != want {
		t.Fatalf("fma=%g want %g", got, want)
	}
	v := FMA(Splat(a), Splat(a), Splat(c))
	for i := range v {
		if v[i] != want {
			t.Fatalf("lane %d: %g want %g", i, v[i], want)
		}
	}
}

func TestInverseSqrt(t *testing.T) {
	if got := InverseSqrt(4); got != 0.5 {
		t.Fatalf("invsqrt(4)=%v", got)
	}
	if got := InverseSqrt(0); !math.IsInf(float64(got), 1) {
		t.Fatalf("invsqrt(0)=%v want +Inf", got)
	}
	if got := InverseSqrt(-1); !math.IsNaN(float64(got)) {
		t.Fatalf("invsqrt(-1)=%v want NaN", got)
	}
}

func TestMat4MulTransposed(t *testing.T) {
	// Columns hold rows of W.
	m := Mat4{
		{1, 0, 0, 0},
		{0, 2, 0, 0},
		{1, 1, 1, 1},
		{0, 0, 0, -1},
	}
	got := m.MulTransposed(Vec4{1, 2, 3, 4})
	want := Vec4{1, 4, 10, -4}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	tt := m.Transpose()
	if tt[0] != (Vec4{1, 0, 1, 0}) || tt[3] != (Vec4{0, 0, 1, -1}) {
		t.Fatalf("transpose: %v", tt)
	}
}
