package fft

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1023: 1024, 1024: 1024}
	for in, want := range cases {
		assert.Equal(t, want, NextPow2(in), "NextPow2(%d)", in)
	}
}

func TestForwardInverseRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	n := 64
	data := make([]complex128, n)
	orig := make([]complex128, n)
	for i := range data {
		data[i] = complex(r.Float64()*2-1, r.Float64()*2-1)
		orig[i] = data[i]
	}

	Forward(data)
	Inverse(data)

	for i := range data {
		assert.InDelta(t, real(orig[i]), real(data[i]), 1e-9)
		assert.InDelta(t, imag(orig[i]), imag(data[i]), 1e-9)
	}
}

// A single unit impulse transforms to a constant-magnitude spectrum.
func TestForwardOfImpulse(t *testing.T) {
	n := 16
	data := make([]complex128, n)
	data[0] = 1
	Forward(data)
	for i, v := range data {
		assert.InDelta(t, 1.0, cmplx.Abs(v), 1e-9, "bin %d", i)
	}
}

func TestBluesteinPlanMatchesNaiveDFTForArbitraryLength(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for _, n := range []int{1, 2, 3, 5, 7, 13, 17, 100} {
		x := make([]complex128, n)
		for i := range x {
			x[i] = complex(r.Float64()*2-1, r.Float64()*2-1)
		}

		want := naiveDFT(x)
		p := NewPlan(n)
		got := p.Transform(x)

		require.Len(t, got, n)
		for k := 0; k < n; k++ {
			assert.InDelta(t, real(want[k]), real(got[k]), 1e-6, "n=%d k=%d", n, k)
			assert.InDelta(t, imag(want[k]), imag(got[k]), 1e-6, "n=%d k=%d", n, k)
		}
	}
}

func naiveDFT(x []complex128) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var sum complex128
		for j := 0; j < n; j++ {
			angle := -2 * math.Pi * float64(k) * float64(j) / float64(n)
			sum += x[j] * complex(math.Cos(angle), math.Sin(angle))
		}
		out[k] = sum
	}
	return out
}
