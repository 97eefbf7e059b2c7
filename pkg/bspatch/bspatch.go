// * Copyright 2003-2005 Colin Percival
// * All rights reserved
// *
// * Redistribution and use in source and binary forms, with or without
// * modification, are permitted providing that the following conditions
// * are met:
// * 1. Redistributions of source code must retain the above copyright
// *    notice, this list of conditions and the following disclaimer.
// * 2. Redistributions in binary form must reproduce the above copyright
// *    notice, this list of conditions and the following disclaimer in the
// *    documentation and/or other materials provided with the distribution.
// *
// * THIS SOFTWARE IS PROVIDED BY THE AUTHOR ``AS IS'' AND ANY EXPRESS OR
// * IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED
// * WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// * ARE DISCLAIMED.  IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY
// * DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// * DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS
// * OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
// * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
// * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
// * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// * POSSIBILITY OF SUCH DAMAGE.

// Package bspatch reads a BSDIFF40 streaming patch (spec §4.H format) and
// reconstructs the new file from the old file plus the patch.
package bspatch

import (
	"bytes"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/util"
)

// ErrCorruptPatch is returned (possibly wrapped) whenever a structural
// check on the patch fails: short header, magic mismatch, a negative
// declared length, a diff or extra stream ending early, or the control
// stream running past the declared new file size. Spec §7: CorruptPatch.
var ErrCorruptPatch = errors.New("bspatch: corrupt patch")

// Bytes applies a patch with the oldfile to create the newfile
func Bytes(oldfile, patch []byte) (newfile []byte, err error) {
	var buf util.BufWriter
	if err := patchb(bytes.NewReader(oldfile), bytes.NewReader(patch), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reader applies a BSDIFF40 patch (using oldfile and patch) to create the newfile
func Reader(oldfile io.ReaderAt, newfile io.WriterAt, patch io.ReaderAt) error {
	return patchb(oldfile, patch, newfile)
}

// File applies a BSDIFF40 patch (using oldfile and patchfile) to create the newfile
func File(oldfile, newfile, patchfile string) error {
	oldF, err := os.Open(oldfile)
	if err != nil {
		return errors.Wrapf(err, "bspatch: could not open oldfile %q", oldfile)
	}
	defer oldF.Close()
	patchF, err := os.Open(patchfile)
	if err != nil {
		return errors.Wrapf(err, "bspatch: could not open patchfile %q", patchfile)
	}
	defer patchF.Close()
	newF, err := os.OpenFile(newfile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "bspatch: could not create newfile %q", newfile)
	}
	err = patchb(oldF, patchF, newF)
	_ = newF.Close()
	if err != nil {
		os.Remove(newfile)
		return errors.Wrap(err, "bspatch")
	}
	return nil
}

func patchb(oldfile io.ReaderAt, patch io.ReaderAt, res io.WriterAt) error {
	header := make([]byte, 32)
	buf := make([]byte, 8)
	ctrl := make([]int64, 3)

	f := io.NewSectionReader(patch, 0, int64(len(header)))

	//	File format:
	//		0	8	"BSDIFF40"
	//		8	8	X
	//		16	8	Y
	//		24	8	sizeof(newfile)
	//		32	X	bzip2(control block)
	//		32+X	Y	bzip2(diff block)
	//		32+X+Y	???	bzip2(extra block)
	//	with control block a set of triples (x,y,z) meaning "add x bytes
	//	from oldfile to x bytes from the diff block; copy y bytes from the
	//	extra block; seek forwards in oldfile by z bytes".

	if n, err := f.Read(header); err != nil || n < 32 {
		if err != nil {
			return errors.Wrapf(ErrCorruptPatch, "reading header: %v", err)
		}
		return errors.Wrapf(ErrCorruptPatch, "header too short (%d < 32)", n)
	}
	if !bytes.Equal(header[:8], []byte("BSDIFF40")) {
		return errors.Wrap(ErrCorruptPatch, "bad magic")
	}

	bzctrllen := util.GetInt64LE(header[8:])
	bzdatalen := util.GetInt64LE(header[16:])
	newsize := util.GetInt64LE(header[24:])

	if bzctrllen < 0 || bzdatalen < 0 || newsize < 0 {
		return errors.Wrapf(ErrCorruptPatch, "negative length (ctrl %d data %d new %d)", bzctrllen, bzdatalen, newsize)
	}

	cpfbz2, err := bzip2.NewReader(io.NewSectionReader(patch, 32, bzctrllen), nil)
	if err != nil {
		return errors.Wrap(err, "bspatch: opening control stream")
	}
	dpfbz2, err := bzip2.NewReader(io.NewSectionReader(patch, 32+bzctrllen, bzdatalen), nil)
	if err != nil {
		return errors.Wrap(err, "bspatch: opening diff stream")
	}
	epfbz2, err := bzip2.NewReader(io.NewSectionReader(patch, 32+bzctrllen+bzdatalen, 1<<31), nil)
	if err != nil {
		return errors.Wrap(err, "bspatch: opening extra stream")
	}

	if newsize > 0 {
		if _, err = res.WriteAt([]byte{0}, newsize-1); err != nil {
			return errors.Wrap(err, "bspatch: preallocating output")
		}
	}

	const readBufSize = 64 * 1024
	var readBuf, readBufPatch [readBufSize]byte
	var newpos, oldpos int64

	for newpos < newsize {
		for i := 0; i <= 2; i++ {
			lenread, err := io.ReadFull(cpfbz2, buf)
			if err != nil && err != io.EOF {
				return errors.Wrapf(ErrCorruptPatch, "control stream ended early (read %d/8): %v", lenread, err)
			}
			ctrl[i] = util.GetInt64LE(buf)
		}
		if newpos+ctrl[0] > newsize {
			return errors.Wrap(ErrCorruptPatch, "diff length overruns new file size")
		}

		for i := int64(0); i < ctrl[0]; i += readBufSize {
			readSize := ctrl[0] - i
			if readSize > readBufSize {
				readSize = readBufSize
			}

			if _, err = io.ReadFull(dpfbz2, readBufPatch[:readSize]); err != nil && err != io.EOF {
				return errors.Wrapf(ErrCorruptPatch, "diff stream ended early: %v", err)
			}

			n, _ := oldfile.ReadAt(readBuf[:readSize], oldpos)
			for j := int64(0); j < int64(n); j++ {
				readBufPatch[j] += readBuf[j]
			}

			if _, err = res.WriteAt(readBufPatch[:readSize], newpos); err != nil {
				return errors.Wrap(err, "bspatch: writing output")
			}
			newpos += readSize
			oldpos += readSize
		}

		if newpos+ctrl[1] > newsize {
			return errors.Wrap(ErrCorruptPatch, "extra length overruns new file size")
		}

		for i := int64(0); i < ctrl[1]; i += readBufSize {
			readSize := ctrl[1] - i
			if readSize > readBufSize {
				readSize = readBufSize
			}
			if _, err = io.ReadFull(epfbz2, readBuf[:readSize]); err != nil && err != io.EOF {
				return errors.Wrapf(ErrCorruptPatch, "extra stream ended early: %v", err)
			}
			if _, err = res.WriteAt(readBuf[:readSize], newpos); err != nil {
				return errors.Wrap(err, "bspatch: writing output")
			}
			newpos += readSize
			oldpos += readSize
		}
		oldpos += ctrl[2] - ctrl[1]
	}

	if err = cpfbz2.Close(); err != nil {
		return errors.Wrap(err, "bspatch: closing control stream")
	}
	if err = dpfbz2.Close(); err != nil {
		return errors.Wrap(err, "bspatch: closing diff stream")
	}
	if err = epfbz2.Close(); err != nil {
		return errors.Wrap(err, "bspatch: closing extra stream")
	}

	return nil
}
