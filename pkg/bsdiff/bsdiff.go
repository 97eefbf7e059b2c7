// Package bsdiff implements the classical streaming BSDIFF40 patch writer
// (spec §4.H): alignment + old + new -> compressed control/diff/extra
// triple stream. Adapted from the teacher's diffb, split so the alignment
// itself (now owned by pkg/align) is no longer re-derived inline here —
// this is what lets a caller hand the same writer an alignment produced
// by pkg/alignmulti instead of pkg/align.
//
// https://github.com/cnSchwarzer/bsdiff-win/blob/master/bsdiff-win/bsdiff.c
package bsdiff

import (
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/align"
	"github.com/blkmatch/bsdiffx/pkg/util"
)

const buffersize = 1024 * 16

// Bytes takes the old and new byte slices and returns the BSDIFF40 patch.
func Bytes(oldbs, newbs []byte) ([]byte, error) {
	alignment, err := align.Align(oldbs, newbs)
	if err != nil {
		return nil, errors.Wrap(err, "bsdiff: aligning")
	}
	return BytesWithAlignment(alignment, oldbs, newbs)
}

// BytesWithAlignment writes a BSDIFF40 patch for an alignment that was
// computed elsewhere (e.g. by pkg/alignmulti for large files).
func BytesWithAlignment(alignment align.Alignment, oldbs, newbs []byte) ([]byte, error) {
	var pf util.BufWriter
	if err := WriteAlignment(alignment, oldbs, newbs, &pf); err != nil {
		return nil, err
	}
	return pf.Bytes(), nil
}

// Stream reads the full old and new binaries and writes the BSDIFF40
// patch to diffbin.
func Stream(oldbin io.ReadSeeker, newbin io.ReadSeeker, diffbin io.Writer) error {
	pold, err := readAll(oldbin)
	if err != nil {
		return err
	}
	pnew, err := readAll(newbin)
	if err != nil {
		return err
	}
	patch, err := Bytes(pold, pnew)
	if err != nil {
		return err
	}
	return putWriter(diffbin, patch)
}

func readAll(rs io.ReadSeeker) ([]byte, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "bsdiff: seeking to determine size")
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "bsdiff: rewinding")
	}
	buf := make([]byte, int(size))
	if err := copyReader(buf, rs); err != nil {
		return nil, errors.Wrap(err, "bsdiff: reading input")
	}
	return buf, nil
}

// WriteAlignment performs the teacher's control/diff/extra emission loop
// over an already-computed alignment (spec §4.H). Each control tuple
// pairs one segment's diff length with the gap and seek to the *next*
// segment ("the alignment must be framed with anchor entries at start and
// end so that the gaps are well-defined", spec §4.H): the final segment's
// gap runs to end-of-file and its seek is zero.
//
//	File is
//		0	32	Header
//		32	??	Bzip2ed ctrl block
//		??	??	Bzip2ed diff block
//		??	??	Bzip2ed extra block
func WriteAlignment(alignment align.Alignment, oldbin, newbin []byte, w io.WriteSeeker) error {
	newsize := len(newbin)

	header := make([]byte, 32)
	copy(header, []byte("BSDIFF40"))
	util.PutInt64LE(0, header[8:])
	util.PutInt64LE(0, header[16:])
	util.PutInt64LE(int64(newsize), header[24:])
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "bsdiff: writing header")
	}

	pfbz2, err := bzip2.NewWriter(w, nil)
	if err != nil {
		return errors.Wrap(err, "bsdiff: opening control stream")
	}

	ctrlBuf := make([]byte, 8)
	writeTuple := func(alen, elen, seek int64) error {
		util.PutInt64LE(alen, ctrlBuf)
		if _, err := pfbz2.Write(ctrlBuf); err != nil {
			return err
		}
		util.PutInt64LE(elen, ctrlBuf)
		if _, err := pfbz2.Write(ctrlBuf); err != nil {
			return err
		}
		util.PutInt64LE(seek, ctrlBuf)
		if _, err := pfbz2.Write(ctrlBuf); err != nil {
			return err
		}
		return nil
	}

	db := make([]byte, 0, newsize+1)
	eb := make([]byte, 0, newsize+1)

	if len(alignment) == 0 {
		if err := writeTuple(0, int64(newsize), 0); err != nil {
			_ = pfbz2.Close()
			return errors.Wrap(err, "bsdiff: writing control tuple")
		}
		eb = append(eb, newbin...)
	} else if lead := int64(alignment[0].NPos); lead > 0 {
		// Frame a leading anchor tuple: Align's phase-4 compaction drops
		// zero-length segments, so when new doesn't start with a match the
		// first retained segment has NPos > 0 and new[0:NPos) would
		// otherwise be covered by neither a diff nor an extra region. The
		// seek carries bspatch's oldpos (which starts at 0) forward to
		// alignment[0].OPos before its diff bytes are read.
		if err := writeTuple(0, lead, int64(alignment[0].OPos)); err != nil {
			_ = pfbz2.Close()
			return errors.Wrap(err, "bsdiff: writing control tuple")
		}
		eb = append(eb, newbin[:lead]...)
	}

	for i, seg := range alignment {
		var extra, seek int64
		if i+1 < len(alignment) {
			next := alignment[i+1]
			extra = int64(next.NPos) - int64(seg.NPos+seg.ALen)
			seek = int64(next.OPos) - int64(seg.OPos+seg.ALen)
		} else {
			extra = int64(newsize) - int64(seg.NPos+seg.ALen)
			seek = 0
		}

		if err := writeTuple(int64(seg.ALen), extra, seek); err != nil {
			_ = pfbz2.Close()
			return errors.Wrap(err, "bsdiff: writing control tuple")
		}

		for k := uint64(0); k < seg.ALen; k++ {
			db = append(db, newbin[seg.NPos+k]-oldbin[seg.OPos+k])
		}
		extraStart := seg.NPos + seg.ALen
		eb = append(eb, newbin[extraStart:int64(extraStart)+extra]...)
	}

	if err := pfbz2.Close(); err != nil {
		return errors.Wrap(err, "bsdiff: closing control stream")
	}

	ctrlEnd, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "bsdiff: measuring control stream length")
	}
	util.PutInt64LE(ctrlEnd-32, header[8:])

	pfbz2, err = bzip2.NewWriter(w, nil)
	if err != nil {
		return errors.Wrap(err, "bsdiff: opening diff stream")
	}
	if _, err := pfbz2.Write(db); err != nil {
		_ = pfbz2.Close()
		return errors.Wrap(err, "bsdiff: writing diff stream")
	}
	if err := pfbz2.Close(); err != nil {
		return errors.Wrap(err, "bsdiff: closing diff stream")
	}

	diffEnd, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "bsdiff: measuring diff stream length")
	}
	util.PutInt64LE(diffEnd-ctrlEnd, header[16:])

	pfbz2, err = bzip2.NewWriter(w, nil)
	if err != nil {
		return errors.Wrap(err, "bsdiff: opening extra stream")
	}
	if _, err := pfbz2.Write(eb); err != nil {
		_ = pfbz2.Close()
		return errors.Wrap(err, "bsdiff: writing extra stream")
	}
	if err := pfbz2.Close(); err != nil {
		return errors.Wrap(err, "bsdiff: closing extra stream")
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "bsdiff: rewinding to rewrite header")
	}
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "bsdiff: rewriting header")
	}
	return nil
}

func putWriter(target io.Writer, b []byte) error {
	lb := len(b)
	offs := 0
	for offs < lb {
		n := buffersize
		if lb-offs < n {
			n = lb - offs
		}
		n2, err := target.Write(b[offs : offs+n])
		if err != nil {
			return err
		}
		offs += n2
	}
	return nil
}

func copyReader(target []byte, rdr io.Reader) error {
	offs := 0
	buf := make([]byte, buffersize)
	for {
		nread, err := rdr.Read(buf)
		if nread > 0 {
			copy(target[offs:], buf[:nread])
			offs += nread
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
