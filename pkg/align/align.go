package align

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/util"
)

// Segment is a single matched region: new[NPos:NPos+ALen) is paired with
// old[OPos:OPos+ALen) as a byte-difference ("copy-with-add") region.
type Segment struct {
	NPos uint64
	OPos uint64
	ALen uint64
}

// Alignment is an ordered sequence of segments covering a subset of new, in
// strictly increasing NPos, with no new-side overlap.
type Alignment []Segment

// Align computes the single-window alignment between old and new: greedy
// segment discovery over the suffix array of old, followed by forward
// extension, backward extension, and overlap-split resolution. It is the
// classical BSDIFF matching loop (spec §4.F), generalized out of the
// teacher's inline patch-writing loop into a pure function.
func Align(old, new []byte) (Alignment, error) {
	if int64(len(old)) > MaxFileSize || int64(len(new)) > MaxFileSize {
		return nil, errors.Errorf("align: input exceeds max supported size %d", MaxFileSize)
	}
	iii := SuffixSort(old)
	return AlignWithSuffixArray(iii, old, new)
}

// AlignWithSuffixArray runs the same algorithm as Align but reuses an
// already-built suffix array of old; this entry point exists for callers,
// such as tests, that want to amortize suffix sorting across repeated
// alignments of the same old buffer.
func AlignWithSuffixArray(iii []int32, old, new []byte) (Alignment, error) {
	oldsize := len(old)
	newsize := len(new)

	var segs Alignment

	var scan, ln, lastscan, lastpos, lastoffset int

	for scan < newsize {
		oldscore := 0
		scan += ln
		scsc := scan
		var pos int
		for scan < newsize {
			scan++
			ln, pos = search(iii, old, new[scan:])

			for scsc < scan+ln {
				if scsc+lastoffset < oldsize && old[scsc+lastoffset] == new[scsc] {
					oldscore++
				}
				scsc++
			}
			if ln == oldscore && ln != 0 {
				break
			}
			if ln > oldscore+8 {
				break
			}
			if scan+lastoffset < oldsize && old[scan+lastoffset] == new[scan] {
				oldscore--
			}
		}

		if ln != oldscore || scan == newsize {
			var s, Sf, lenf int
			i := 0
			for lastscan+i < scan && lastpos+i < oldsize {
				if old[lastpos+i] == new[lastscan+i] {
					s++
				}
				i++
				if s*2-i > Sf*2-lenf {
					Sf = s
					lenf = i
				}
			}

			lenb := 0
			if scan < newsize {
				s = 0
				Sb := 0
				for i = 1; scan >= lastscan+i && pos >= i; i++ {
					if old[pos-i] == new[scan-i] {
						s++
					}
					if s*2-i > Sb*2-lenb {
						Sb = s
						lenb = i
					}
				}
			}

			if lastscan+lenf > scan-lenb {
				overlap := (lastscan + lenf) - (scan - lenb)
				s = 0
				Ss := 0
				lens := 0
				for i = 0; i < overlap; i++ {
					if new[lastscan+lenf-overlap+i] == old[lastpos+lenf-overlap+i] {
						s++
					}
					if new[scan-lenb+i] == old[pos-lenb+i] {
						s--
					}
					if s > Ss {
						Ss = s
						lens = i + 1
					}
				}
				lenf += lens - overlap
				lenb -= lens
			}

			if lenf > 0 {
				segs = append(segs, Segment{
					NPos: uint64(lastscan),
					OPos: uint64(lastpos),
					ALen: uint64(lenf),
				})
			}

			lastscan = scan - lenb
			lastpos = pos - lenb
			lastoffset = pos - scan
		}
	}

	assertNonOverlapping(segs)
	return segs, nil
}

// assertNonOverlapping checks the invariant the rest of the module depends
// on: segments are strictly ordered and never overlap on the new side. A
// violation here means the scan/extend/split logic above has a bug, not
// that the input was malformed.
func assertNonOverlapping(segs Alignment) {
	var lastEnd uint64
	for i, s := range segs {
		util.Assert(s.NPos >= lastEnd, "align: segment %d overlaps previous (NPos=%d < %d)", i, s.NPos, lastEnd)
		lastEnd = s.NPos + s.ALen
	}
}

// search binary-searches the suffix array iii of old for the position
// whose suffix shares the longest common prefix with new, returning that
// length and the matching old-file offset.
func search(iii []int32, old, new []byte) (int, int) {
	return searchRange(iii, old, new, 0, len(iii)-1)
}

func searchRange(iii []int32, old, new []byte, st, en int) (int, int) {
	oldsize := len(old)
	newsize := len(new)

	for en-st >= 2 {
		x := st + (en-st)/2
		cmpln := min(oldsize-int(iii[x]), newsize)
		if bytes.Compare(old[iii[x]:int(iii[x])+cmpln], new[:cmpln]) < 0 {
			st = x
		} else {
			en = x
		}
	}

	x := matchlen(old[iii[st]:], new)
	y := matchlen(old[iii[en]:], new)
	if x > y {
		return x, int(iii[st])
	}
	return y, int(iii[en])
}

func matchlen(old, new []byte) int {
	i := 0
	oldsize := len(old)
	newsize := len(new)
	for i < oldsize && i < newsize {
		if old[i] != new[i] {
			break
		}
		i++
	}
	return i
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
