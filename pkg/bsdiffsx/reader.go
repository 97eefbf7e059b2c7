package bsdiffsx

import (
	"bytes"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/util"
)

// Reader provides random-access reads of the new file reconstructed from a
// BSDIFFSX patch, without ever materializing the whole new file (spec
// §4.J). It satisfies io.ReaderAt: ReadAt is safe for concurrent use, since
// it touches no mutable state beyond the os.File handles it reads through.
type Reader struct {
	oldFile   *os.File
	patchFile *os.File
	newSize   int64
	b         int64
	entries   []segTableEntry
}

// Open validates a BSDIFFSX patch's outer header and decompresses its
// segment table, returning a Reader ready to serve ReadAt calls against
// oldPath. The caller must Close the Reader when done.
func Open(patchPath, oldPath string) (*Reader, error) {
	patchFile, err := os.Open(patchPath)
	if err != nil {
		return nil, errors.Wrapf(err, "bsdiffsx: opening patch %q", patchPath)
	}
	oldFile, err := os.Open(oldPath)
	if err != nil {
		_ = patchFile.Close()
		return nil, errors.Wrapf(err, "bsdiffsx: opening old file %q", oldPath)
	}

	r, err := open(patchFile, oldFile)
	if err != nil {
		_ = patchFile.Close()
		_ = oldFile.Close()
		return nil, err
	}
	return r, nil
}

func open(patchFile, oldFile *os.File) (*Reader, error) {
	header := make([]byte, outerHeaderLen)
	if _, err := io.ReadFull(io.NewSectionReader(patchFile, 0, outerHeaderLen), header); err != nil {
		return nil, errors.Wrapf(ErrCorruptPatch, "reading outer header: %v", err)
	}
	if !bytes.Equal(header[:8], []byte(magic)) {
		return nil, errors.Wrap(ErrCorruptPatch, "bad magic")
	}

	newSize := int64(util.GetUint64BE(header[8:16]))
	b := int64(util.GetUint32BE(header[16:20]))
	hdrEncLen := int64(util.GetUint32BE(header[20:24]))
	patchDataLen := int64(util.GetUint64BE(header[24:32]))

	if b <= 0 {
		return nil, errors.Wrap(ErrCorruptPatch, "non-positive segment length")
	}
	if hdrEncLen < 0 || patchDataLen < 0 {
		return nil, errors.Wrap(ErrCorruptPatch, "negative length field")
	}

	const gib = int64(1) << 30
	if wantB := (newSize + gib - 1) / gib; newSize > 0 && wantB > b {
		return nil, errors.Wrapf(ErrCorruptPatch, "segment length %d too small for new_size %d (need >= %d)", b, newSize, wantB)
	}

	info, err := patchFile.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "bsdiffsx: stat'ing patch file")
	}
	if wantSize := outerHeaderLen + hdrEncLen + patchDataLen; info.Size() != wantSize {
		return nil, errors.Wrapf(ErrCorruptPatch, "patch file size %d does not match header (%d + %d + %d = %d)",
			info.Size(), outerHeaderLen, hdrEncLen, patchDataLen, wantSize)
	}

	tableStart := int64(outerHeaderLen)
	tableDec, err := bzip2DecompressAt(patchFile, tableStart, hdrEncLen)
	if err != nil {
		return nil, errors.Wrap(err, "bsdiffsx: decompressing segment table")
	}
	if len(tableDec)%segTableEntryLen != 0 {
		return nil, errors.Wrapf(ErrCorruptPatch, "segment table length %d not a multiple of %d", len(tableDec), segTableEntryLen)
	}
	nsegs := len(tableDec) / segTableEntryLen

	wantSegs := 0
	if newSize > 0 {
		wantSegs = int((newSize + b - 1) / b)
	}
	if nsegs != wantSegs {
		return nil, errors.Wrapf(ErrCorruptPatch, "segment table has %d entries, expected %d for new_size=%d b=%d", nsegs, wantSegs, newSize, b)
	}

	entries := make([]segTableEntry, nsegs)
	ppos := tableStart + hdrEncLen
	for i := 0; i < nsegs; i++ {
		off := i * segTableEntryLen
		e := segTableEntry{
			OStart: int64(util.GetUint64BE(tableDec[off : off+8])),
			OLen:   int64(util.GetUint32BE(tableDec[off+8 : off+12])),
			PLen:   int64(util.GetUint32BE(tableDec[off+12 : off+16])),
			ppos:   ppos,
		}
		if e.OStart < 0 || e.OLen < 0 || e.PLen < miniHeaderLen {
			return nil, errors.Wrapf(ErrCorruptPatch, "segment %d has invalid bounds (ostart=%d olen=%d plen=%d)", i, e.OStart, e.OLen, e.PLen)
		}
		entries[i] = e
		ppos += e.PLen
	}
	if dataEnd := ppos - (tableStart + hdrEncLen); dataEnd != patchDataLen {
		return nil, errors.Wrapf(ErrCorruptPatch, "patch data length %d does not match sum of segment lengths %d", patchDataLen, dataEnd)
	}

	return &Reader{
		oldFile:   oldFile,
		patchFile: patchFile,
		newSize:   newSize,
		b:         b,
		entries:   entries,
	}, nil
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	err1 := r.patchFile.Close()
	err2 := r.oldFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Size returns the reconstructed new file's total length.
func (r *Reader) Size() int64 { return r.newSize }

// ReadAt fills buf with the reconstructed new-file bytes starting at
// offset, applying only the patch segments that overlap
// [offset, offset+len(buf)). It follows the io.ReaderAt contract: on a
// short read past end of file it returns the bytes read along with
// io.EOF.
func (r *Reader) ReadAt(buf []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.New("bsdiffsx: negative ReadAt offset")
	}
	if offset >= r.newSize {
		return 0, io.EOF
	}

	want := int64(len(buf))
	end := offset + want
	if end > r.newSize {
		end = r.newSize
	}

	firstSeg := offset / r.b
	lastSeg := (end - 1) / r.b

	n := 0
	for segIdx := firstSeg; segIdx <= lastSeg; segIdx++ {
		segBytes, err := r.reconstructSegment(int(segIdx))
		if err != nil {
			return n, errors.Wrapf(err, "bsdiffsx: reconstructing segment %d", segIdx)
		}

		wStart := segIdx * r.b
		copyStart := int64(0)
		if offset > wStart {
			copyStart = offset - wStart
		}
		copyEnd := int64(len(segBytes))
		if wStart+copyEnd > end {
			copyEnd = end - wStart
		}
		if copyStart >= copyEnd {
			continue
		}
		n += copy(buf[n:], segBytes[copyStart:copyEnd])
	}

	if int64(n) < want {
		return n, io.EOF
	}
	return n, nil
}

// reconstructSegment decompresses and applies segment segIdx's mini-BSDIFF
// block, returning that window's full reconstructed new-file bytes.
func (r *Reader) reconstructSegment(segIdx int) ([]byte, error) {
	if segIdx < 0 || segIdx >= len(r.entries) {
		return nil, errors.Errorf("segment index %d out of range [0,%d)", segIdx, len(r.entries))
	}
	e := r.entries[segIdx]

	wStart := int64(segIdx) * r.b
	wEnd := wStart + r.b
	if wEnd > r.newSize {
		wEnd = r.newSize
	}
	windowLen := wEnd - wStart

	blob := make([]byte, e.PLen)
	if _, err := io.ReadFull(io.NewSectionReader(r.patchFile, e.ppos, e.PLen), blob); err != nil {
		return nil, errors.Wrapf(ErrCorruptPatch, "reading segment blob: %v", err)
	}
	if len(blob) < miniHeaderLen {
		return nil, errors.Wrapf(ErrCorruptPatch, "segment blob shorter than mini-header (%d < %d)", len(blob), miniHeaderLen)
	}

	ctrlEncLen := int64(util.GetUint32BE(blob[0:4]))
	ctrlLen := int64(util.GetUint32BE(blob[4:8]))
	diffEncLen := int64(util.GetUint32BE(blob[8:12]))
	extraEncLen := int64(util.GetUint32BE(blob[12:16]))

	off := int64(miniHeaderLen)
	if off+ctrlEncLen+diffEncLen+extraEncLen != int64(len(blob)) {
		return nil, errors.Wrapf(ErrCorruptPatch, "mini-header lengths %d+%d+%d+%d don't match blob size %d",
			miniHeaderLen, ctrlEncLen, diffEncLen, extraEncLen, len(blob))
	}

	ctrlBytes, err := bzip2Decompress(blob[off : off+ctrlEncLen])
	if err != nil {
		return nil, errors.Wrap(err, "decompressing control stream")
	}
	off += ctrlEncLen
	if int64(len(ctrlBytes)) != ctrlLen {
		return nil, errors.Wrapf(ErrCorruptPatch, "control stream decompressed to %d bytes, expected %d", len(ctrlBytes), ctrlLen)
	}
	if ctrlLen%ctrlRecordLen != 0 {
		return nil, errors.Wrapf(ErrCorruptPatch, "control length %d not a multiple of %d", ctrlLen, ctrlRecordLen)
	}

	diffBytes, err := bzip2Decompress(blob[off : off+diffEncLen])
	if err != nil {
		return nil, errors.Wrap(err, "decompressing diff stream")
	}
	off += diffEncLen

	extraBytes, err := bzip2Decompress(blob[off : off+extraEncLen])
	if err != nil {
		return nil, errors.Wrap(err, "decompressing extra stream")
	}

	oldBuf := make([]byte, e.OLen)
	if e.OLen > 0 {
		if _, err := io.ReadFull(io.NewSectionReader(r.oldFile, e.OStart, e.OLen), oldBuf); err != nil {
			return nil, errors.Wrapf(ErrCorruptPatch, "reading old-file range: %v", err)
		}
	}

	out := make([]byte, 0, windowLen)
	var oldPos int64
	nrecs := int(ctrlLen / ctrlRecordLen)
	for i := 0; i < nrecs; i++ {
		rec := ctrlBytes[i*ctrlRecordLen : (i+1)*ctrlRecordLen]
		seek := int64(util.GetInt32BE(rec[0:4]))
		diffLen := int64(util.GetUint32BE(rec[4:8]))
		extraLen := int64(util.GetUint32BE(rec[8:12]))

		oldPos += seek
		if diffLen > 0 {
			if oldPos < 0 || oldPos+diffLen > int64(len(oldBuf)) {
				return nil, errors.Wrapf(ErrCorruptPatch, "control record references old range [%d,%d) outside segment span [0,%d)", oldPos, oldPos+diffLen, len(oldBuf))
			}
			if int64(len(diffBytes)) < diffLen {
				return nil, errors.Wrap(ErrCorruptPatch, "diff stream shorter than control records require")
			}
			for k := int64(0); k < diffLen; k++ {
				out = append(out, diffBytes[k]+oldBuf[oldPos+k])
			}
			diffBytes = diffBytes[diffLen:]
			oldPos += diffLen
		}
		if extraLen > 0 {
			if int64(len(extraBytes)) < extraLen {
				return nil, errors.Wrap(ErrCorruptPatch, "extra stream shorter than control records require")
			}
			out = append(out, extraBytes[:extraLen]...)
			extraBytes = extraBytes[extraLen:]
		}
	}

	if int64(len(out)) != windowLen {
		return nil, errors.Wrapf(ErrCorruptPatch, "segment reconstructed to %d bytes, expected window length %d", len(out), windowLen)
	}
	return out, nil
}

func bzip2DecompressAt(f *os.File, start, length int64) ([]byte, error) {
	r, err := bzip2.NewReader(io.NewSectionReader(f, start, length), nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func bzip2Decompress(enc []byte) ([]byte, error) {
	if len(enc) == 0 {
		return nil, nil
	}
	r, err := bzip2.NewReader(bytes.NewReader(enc), nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
