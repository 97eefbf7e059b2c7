// Package bsdiffsx implements the seekable BSDIFFSX patch format (spec
// §4.I/§4.J): a patch segmented into b-byte new-file regions, each backed
// by a self-contained mini-BSDIFF block, so a reader can reconstruct any
// [offset, offset+length) slice of new without applying the whole patch.
// New to this module; grounded on
// _examples/original_source/lib/bsdiff-ra/bsdiff_ra_writepatch.c (the
// mini-header / 12-byte control record layout) and
// trunk/lib/bsdiff-ra/bsdiff_ra_read.c (the random-access apply loop),
// reusing pkg/util's big-endian sign-magnitude codec rather than the
// little-endian one pkg/bsdiff uses (spec §9: two distinct codec
// routines, to keep the byte-layout contract visible at call sites).
package bsdiffsx

import "github.com/pkg/errors"

const (
	magic = "BSDIFFSX"

	// outerHeaderLen is the fixed size of the BSDIFFSX outer header:
	// magic(8) + new_size(8) + b(4) + hdr_enc_len(4) + patch_data_len(8).
	outerHeaderLen = 32

	// segTableEntryLen is the size of one compressed-segment-table
	// record: ostart(8) + olen(4) + plen(4).
	segTableEntryLen = 16

	// miniHeaderLen is the size of one patch segment's mini-BSDIFF
	// header: ctrl_enc_len(4) + ctrl_len(4) + diff_enc_len(4) +
	// extra_enc_len(4).
	miniHeaderLen = 16

	// ctrlRecordLen is the size of one control-stream record:
	// seek(4, sign-magnitude) + diff_len(4) + extra_len(4).
	ctrlRecordLen = 12

	// maxSegmentOldLen is the sanity bound on a single segment's old-file
	// span (spec §3: "olen ≤ 2^30").
	maxSegmentOldLen = int64(1) << 30
)

// ErrCorruptPatch is returned (possibly wrapped) when a structural check
// on a BSDIFFSX patch fails. Spec §7: CorruptPatch.
var ErrCorruptPatch = errors.New("bsdiffsx: corrupt patch")

// segTableEntry is one record of the compressed segment table: the
// old-file span a segment's mini-BSDIFF block may reference, and that
// block's length within the patch-data region.
type segTableEntry struct {
	OStart int64
	OLen   int64
	PLen   int64

	// ppos is the absolute patch-file byte offset of this segment's
	// mini-BSDIFF block, derived by accumulating PLen — it is not part of
	// the on-disk encoding.
	ppos int64
}

type ctrlRecord struct {
	Seek     int64
	DiffLen  int64
	ExtraLen int64
}
