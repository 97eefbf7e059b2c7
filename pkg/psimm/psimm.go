// Package psimm implements the perceptual-similarity digest (spec §4.B/
// §4.C): a length-L similarity-preserving digest of a byte buffer, and the
// dot-product similarity score between two digests produced by the same
// context. New to this module; grounded on
// _examples/original_source/lib/blockmatch/blockmatch_psimm.c for the
// three-sub-digest split, the weighted byte map, and the fold-then-DFT
// construction, with the DFT itself realized through pkg/fft's Bluestein
// plan rather than hand-unrolled split-radix kernels (spec §4.B).
package psimm

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/fft"
)

type subDigest struct {
	length int
	sign   [256]int8
	plan   *fft.Plan
}

// Context is an immutable digest context: digest length L, three
// sub-digest descriptors whose lengths sum to L, and their precomputed
// FFT twiddle tables. Two digests produced by the same context are
// comparable; digests from different contexts are not (spec §3).
type Context struct {
	L    int
	subs [3]subDigest
}

// NewContext builds a digest context for length-L digests, deterministically
// derived from a 256-bit seed. The spec leaves the seed's source
// unspecified ("an implementer may choose to make that seed an explicit
// parameter for reproducible tests", §9); this module takes that option so
// contexts can be rebuilt identically in tests.
func NewContext(seed [32]byte, length int) (*Context, error) {
	if length < 1 {
		return nil, errors.Errorf("psimm: digest length must be positive, got %d", length)
	}

	rng := rand.New(rand.NewSource(seedToInt64(seed)))

	l0 := length/4 + rng.Intn(max1(length/8))
	l1 := length/4 + rng.Intn(max1(length/8))
	l2 := length - l0 - l1
	if l2 < 1 {
		// Guard against an empty third sub-digest by falling back to an
		// even split. For L < 4, l0 and l1 above are zero, so the first two
		// sub-digests carry no coefficients.
		l0 = length / 3
		l1 = length / 3
		l2 = length - l0 - l1
	}

	ctx := &Context{L: length}
	lens := [3]int{l0, l1, l2}
	for i, l := range lens {
		ctx.subs[i].length = l
		for v := 0; v < 256; v++ {
			if rng.Intn(2) == 0 {
				ctx.subs[i].sign[v] = -1
			} else {
				ctx.subs[i].sign[v] = 1
			}
		}
		ctx.subs[i].plan = fft.NewPlan(2*l + 1)
	}
	return ctx, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func seedToInt64(seed [32]byte) int64 {
	var acc uint64
	for i := 0; i < 4; i++ {
		acc ^= binary.LittleEndian.Uint64(seed[i*8 : i*8+8])
	}
	if acc == 0 {
		acc = 1
	}
	return int64(acc)
}

// Digest computes the length-L perceptual digest of buf.
func (c *Context) Digest(buf []byte) []float64 {
	out := make([]float64, 0, c.L)
	for i := range c.subs {
		out = append(out, c.subs[i].digest(buf)...)
	}
	return out
}

func (sd *subDigest) digest(buf []byte) []float64 {
	var bfreq [256]float64
	for _, b := range buf {
		bfreq[b]++
	}

	var numerator, denominator float64
	for v := 0; v < 256; v++ {
		if bfreq[v] == 0 {
			continue
		}
		sq := math.Sqrt(bfreq[v])
		numerator += float64(sd.sign[v]) * sq
		denominator += sq
	}
	var zero float64
	if denominator != 0 {
		zero = numerator / denominator
	}

	var w [256]float64
	for v := 0; v < 256; v++ {
		if bfreq[v] == 0 {
			continue
		}
		w[v] = (float64(sd.sign[v]) - zero) / math.Sqrt(bfreq[v])
	}

	foldlen := 2*sd.length + 1
	fftdat := make([]complex128, foldlen)
	for j, b := range buf {
		fftdat[j%foldlen] += complex(w[b], 0)
	}

	spectrum := sd.plan.Transform(fftdat)

	energies := make([]float64, sd.length)
	var sumSq float64
	for k := 1; k <= sd.length; k++ {
		x := spectrum[k]
		e := real(x)*real(x) + imag(x)*imag(x)
		energies[k-1] = e
		sumSq += e * e
	}
	if sumSq > 0 {
		scale := math.Sqrt(float64(sd.length) / sumSq)
		for i := range energies {
			energies[i] *= scale
		}
	}
	return energies
}

// Score computes the dot-product similarity between two digests produced
// by the same context. The caller is responsible for only comparing
// digests from the same Context; scores across contexts are meaningless.
func Score(d1, d2 []float64) float64 {
	n := len(d1)
	if len(d2) < n {
		n = len(d2)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += d1[i] * d2[i]
	}
	return sum
}
