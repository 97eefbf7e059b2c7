package bsdiffsx

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/align"
	"github.com/blkmatch/bsdiffx/pkg/util"
)

// Write assembles a BSDIFFSX patch for an already-computed alignment
// between old and new, segmenting new into b-byte regions (spec §4.I).
// The final segment absorbs whatever residue is left after
// nsegs = ceil(len(new)/b).
func Write(alignment align.Alignment, old, new []byte, b int, w io.WriteSeeker) error {
	if b <= 0 {
		return errors.New("bsdiffsx: segment length must be positive")
	}
	newSize := int64(len(new))
	nsegs := (newSize + int64(b) - 1) / int64(b)
	if newSize == 0 {
		nsegs = 0
	}

	entries := make([]segTableEntry, nsegs)
	segBlobs := make([][]byte, nsegs)

	segIdx := 0
	gi := 0 // index into alignment, advanced as windows move forward
	for s := int64(0); s < nsegs; s++ {
		wStart := s * int64(b)
		wEnd := wStart + int64(b)
		if wEnd > newSize {
			wEnd = newSize
		}

		local, nextGi := clipAlignment(alignment, gi, wStart, wEnd)
		gi = nextGi

		ostart, olen := boundingOldRange(local)
		if olen > maxSegmentOldLen {
			return errors.Errorf("bsdiffsx: segment %d old span %d exceeds sanity bound", s, olen)
		}

		blob, err := buildMiniSegment(local, old, new, wStart, wEnd, ostart)
		if err != nil {
			return errors.Wrapf(err, "bsdiffsx: building segment %d", s)
		}

		entries[segIdx] = segTableEntry{OStart: ostart, OLen: olen, PLen: int64(len(blob))}
		segBlobs[segIdx] = blob
		segIdx++
	}

	return writeOuter(entries, segBlobs, newSize, int64(b), w)
}

// clipAlignment returns the subset of alignment overlapping [wStart,wEnd),
// with NPos rebased to be local to the window (NPos - wStart) and OPos
// left in global old-file coordinates (callers rebase to ostart
// separately). startIdx/returned idx let the caller resume scanning from
// where the previous window left off, since alignment is sorted by NPos
// and windows are processed in increasing order. A single global segment
// whose ALen exceeds the window length straddles a boundary and must be
// reconsidered (and re-clipped) for the following window too, so the
// resume index only skips segments this window fully consumed.
func clipAlignment(alignment align.Alignment, startIdx int, wStart, wEnd int64) (align.Alignment, int) {
	var out align.Alignment
	i := startIdx
	for ; i < len(alignment); i++ {
		g := alignment[i]
		gStart := int64(g.NPos)
		gEnd := int64(g.NPos + g.ALen)
		if gEnd <= wStart {
			continue // fully before this window; a later window can't need it again
		}
		if gStart >= wEnd {
			break // fully after this window; stop, resume here next time
		}
		segStart := gStart
		if segStart < wStart {
			segStart = wStart
		}
		segEnd := gEnd
		if segEnd > wEnd {
			segEnd = wEnd
		}
		if segStart >= segEnd {
			continue
		}
		delta := segStart - gStart
		out = append(out, align.Segment{
			NPos: uint64(segStart - wStart),
			OPos: g.OPos + uint64(delta),
			ALen: uint64(segEnd - segStart),
		})
	}

	// Since alignment segments never overlap in NPos, at most the last
	// segment processed above can straddle into the next window.
	resume := i
	if i > startIdx && int64(alignment[i-1].NPos+alignment[i-1].ALen) > wEnd {
		resume = i - 1
	}
	return out, resume
}

func boundingOldRange(local align.Alignment) (ostart, olen int64) {
	if len(local) == 0 {
		return 0, 0
	}
	minO := int64(local[0].OPos)
	maxO := int64(local[0].OPos + local[0].ALen)
	for _, s := range local[1:] {
		lo := int64(s.OPos)
		hi := int64(s.OPos + s.ALen)
		if lo < minO {
			minO = lo
		}
		if hi > maxO {
			maxO = hi
		}
	}
	return minO, maxO - minO
}

// buildMiniSegment builds one self-contained mini-BSDIFF block (spec
// §4.I point 2): a 16-byte header followed by three bzip2 streams.
// local segments carry NPos local to [wStart,wEnd) and OPos in global
// old-file coordinates; ostart rebases OPos for the control stream.
func buildMiniSegment(local align.Alignment, old, new []byte, wStart, wEnd, ostart int64) ([]byte, error) {
	windowLen := wEnd - wStart

	var records []ctrlRecord
	var diffBytes, extraBytes []byte

	cursorNPos := int64(0)
	cursorOPos := int64(0)

	for _, g := range local {
		nposLocal := int64(g.NPos)
		if nposLocal > cursorNPos {
			gap := nposLocal - cursorNPos
			records = append(records, ctrlRecord{Seek: 0, DiffLen: 0, ExtraLen: gap})
			extraBytes = append(extraBytes, new[wStart+cursorNPos:wStart+nposLocal]...)
			cursorNPos = nposLocal
		}

		oposLocal := int64(g.OPos) - ostart
		seek := oposLocal - cursorOPos
		alen := int64(g.ALen)
		records = append(records, ctrlRecord{Seek: seek, DiffLen: alen, ExtraLen: 0})

		for k := int64(0); k < alen; k++ {
			diffBytes = append(diffBytes, new[wStart+nposLocal+k]-old[ostart+oposLocal+k])
		}

		cursorNPos = nposLocal + alen
		cursorOPos = oposLocal + alen
	}

	if cursorNPos < windowLen {
		gap := windowLen - cursorNPos
		records = append(records, ctrlRecord{Seek: 0, DiffLen: 0, ExtraLen: gap})
		extraBytes = append(extraBytes, new[wStart+cursorNPos:wEnd]...)
		cursorNPos = windowLen
	}
	util.Assert(cursorNPos == windowLen, "bsdiffsx: control walk covered %d of %d window bytes", cursorNPos, windowLen)

	ctrlBytes := make([]byte, 0, len(records)*ctrlRecordLen)
	rec := make([]byte, ctrlRecordLen)
	for _, r := range records {
		util.PutInt32BE(int32(r.Seek), rec[0:4])
		util.PutUint32BE(uint32(r.DiffLen), rec[4:8])
		util.PutUint32BE(uint32(r.ExtraLen), rec[8:12])
		ctrlBytes = append(ctrlBytes, rec...)
	}

	ctrlEnc, err := bzip2Compress(ctrlBytes)
	if err != nil {
		return nil, errors.Wrap(err, "compressing control stream")
	}
	diffEnc, err := bzip2Compress(diffBytes)
	if err != nil {
		return nil, errors.Wrap(err, "compressing diff stream")
	}
	extraEnc, err := bzip2Compress(extraBytes)
	if err != nil {
		return nil, errors.Wrap(err, "compressing extra stream")
	}

	header := make([]byte, miniHeaderLen)
	util.PutUint32BE(uint32(len(ctrlEnc)), header[0:4])
	util.PutUint32BE(uint32(len(ctrlBytes)), header[4:8])
	util.PutUint32BE(uint32(len(diffEnc)), header[8:12])
	util.PutUint32BE(uint32(len(extraEnc)), header[12:16])

	out := make([]byte, 0, miniHeaderLen+len(ctrlEnc)+len(diffEnc)+len(extraEnc))
	out = append(out, header...)
	out = append(out, ctrlEnc...)
	out = append(out, diffEnc...)
	out = append(out, extraEnc...)
	return out, nil
}

func bzip2Compress(data []byte) ([]byte, error) {
	var buf util.BufWriter
	w, err := bzip2.NewWriter(&buf, nil)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeOuter writes the 32-byte outer header, the bzip2-compressed
// segment table, and the concatenated patch segments, then rewrites the
// header with the true lengths (spec §4.I).
func writeOuter(entries []segTableEntry, blobs [][]byte, newSize, b int64, w io.WriteSeeker) error {
	header := make([]byte, outerHeaderLen)
	copy(header, magic)
	util.PutUint64BE(uint64(newSize), header[8:16])
	util.PutUint32BE(uint32(b), header[16:20])
	// hdr_enc_len (20:24) and patch_data_len (24:32) rewritten below.
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "bsdiffsx: writing outer header")
	}

	tableBytes := make([]byte, len(entries)*segTableEntryLen)
	off := 0
	for _, e := range entries {
		util.PutUint64BE(uint64(e.OStart), tableBytes[off:off+8])
		util.PutUint32BE(uint32(e.OLen), tableBytes[off+8:off+12])
		util.PutUint32BE(uint32(e.PLen), tableBytes[off+12:off+16])
		off += segTableEntryLen
	}
	tableEnc, err := bzip2Compress(tableBytes)
	if err != nil {
		return errors.Wrap(err, "bsdiffsx: compressing segment table")
	}
	if _, err := w.Write(tableEnc); err != nil {
		return errors.Wrap(err, "bsdiffsx: writing segment table")
	}

	var patchDataLen int64
	for _, blob := range blobs {
		if _, err := w.Write(blob); err != nil {
			return errors.Wrap(err, "bsdiffsx: writing patch segment")
		}
		patchDataLen += int64(len(blob))
	}

	util.PutUint32BE(uint32(len(tableEnc)), header[20:24])
	util.PutUint64BE(uint64(patchDataLen), header[24:32])
	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "bsdiffsx: rewinding to rewrite header")
	}
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "bsdiffsx: rewriting outer header")
	}
	return nil
}
