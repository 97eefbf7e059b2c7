// Package align implements the suffix-array driven, single-window BSDIFF
// aligner: classical BSDIFF matching, 50% extension, and overlap splitting,
// converting two byte sequences into a sequence of matched segments.
package align

// MaxFileSize bounds the size of either input to the aligner: the suffix
// array is addressed with int32 indices, so old (and therefore new, since a
// match position never exceeds len(old)) must fit. Mirrors itchio/wharf's
// own MaxFileSize constant, which caps at the same bound for the same
// reason (both inputs held fully resident, per the non-goals).
const MaxFileSize = int64(1)<<31 - 2

// SuffixSort builds the suffix array of buf using the classical qsufsort
// doubling-and-bucket-split algorithm. The returned array I has length
// len(buf)+1; I[k] is the starting offset of the k-th suffix in
// lexicographic order, and the sentinel suffix (offset len(buf)) always
// sorts first.
func SuffixSort(buf []byte) []int32 {
	n := len(buf)
	iii := make([]int, n+1)
	vvv := make([]int, n+1)
	qsufsort(iii, vvv, buf)
	out := make([]int32, n+1)
	for i, v := range iii {
		out[i] = int32(v)
	}
	return out
}

func qsufsort(iii, vvv []int, buf []byte) {
	var buckets [256]int
	n := len(buf)

	for i := 0; i < n; i++ {
		buckets[buf[i]]++
	}
	for i := 1; i < 256; i++ {
		buckets[i] += buckets[i-1]
	}
	for i := 255; i > 0; i-- {
		buckets[i] = buckets[i-1]
	}
	buckets[0] = 0

	for i := 0; i < n; i++ {
		buckets[buf[i]]++
		iii[buckets[buf[i]]] = i
	}
	iii[0] = n
	for i := 0; i < n; i++ {
		vvv[i] = buckets[buf[i]]
	}
	vvv[n] = 0
	for i := 1; i < 256; i++ {
		if buckets[i] == buckets[i-1]+1 {
			iii[buckets[i]] = -1
		}
	}
	iii[0] = -1

	for h := 1; iii[0] != -(n + 1); h += h {
		ln := 0
		i := 0
		for i < n+1 {
			if iii[i] < 0 {
				ln -= iii[i]
				i -= iii[i]
			} else {
				if ln != 0 {
					iii[i-ln] = -ln
				}
				ln = vvv[iii[i]] + 1 - i
				split(iii, vvv, i, ln, h)
				i += ln
				ln = 0
			}
		}
		if ln != 0 {
			iii[i-ln] = -ln
		}
	}

	for i := 0; i < n+1; i++ {
		iii[vvv[i]] = i
	}
}

func split(iii, vvv []int, start, ln, h int) {
	if ln < 16 {
		var j int
		for k := start; k < start+ln; k += j {
			j = 1
			x := vvv[iii[k]+h]
			for i := 1; k+i < start+ln; i++ {
				if vvv[iii[k+i]+h] < x {
					x = vvv[iii[k+i]+h]
					j = 0
				}
				if vvv[iii[k+i]+h] == x {
					iii[k+j], iii[k+i] = iii[k+i], iii[k+j]
					j++
				}
				for ii := 0; ii < j; ii++ {
					vvv[iii[k+ii]] = k + j - 1
				}
				if j == 1 {
					iii[k] = -1
				}
			}
		}
		return
	}

	x := vvv[iii[start+ln/2]+h]
	var jj, kk int
	for i := start; i < start+ln; i++ {
		if vvv[iii[i]+h] < x {
			jj++
		} else if vvv[iii[i]+h] == x {
			kk++
		}
	}
	jj += start
	kk += jj

	i, j, k := start, 0, 0
	for i < jj {
		if vvv[iii[i]+h] < x {
			i++
		} else if vvv[iii[i]+h] == x {
			iii[i], iii[jj+j] = iii[jj+j], iii[i]
			j++
		} else {
			iii[i], iii[kk+k] = iii[kk+k], iii[i]
			k++
		}
	}
	for jj+j < kk {
		if vvv[iii[jj+j]+h] == x {
			j++
		} else {
			iii[jj+j], iii[kk+k] = iii[kk+k], iii[jj+j]
			k++
		}
	}

	if jj > start {
		split(iii, vvv, start, jj-start, h)
	}
	for i := 0; i < kk-jj; i++ {
		vvv[iii[jj+i]] = kk - 1
	}
	if jj == kk-1 {
		iii[jj] = -1
	}
	if start+ln > kk {
		split(iii, vvv, kk, start+ln-kk, h)
	}
}
