// Command bspatch-ra writes LEN bytes from offset START of the new file
// reconstructed from a BSDIFFSX seekable patch to standard output, without
// ever reconstructing the whole new file.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/blkmatch/bsdiffx/pkg/bsdiffsx"
)

func main() {
	flag.Usage = func() {
		log.Printf("usage: bspatch-ra old patch START LEN")
	}
	flag.Parse()
	if flag.NArg() != 4 {
		flag.Usage()
		os.Exit(1)
	}

	oldpath, patchpath := flag.Arg(0), flag.Arg(1)
	start, err := strconv.ParseInt(flag.Arg(2), 10, 64)
	if err != nil || start < 0 {
		log.Printf("bspatch-ra: invalid START %q", flag.Arg(2))
		os.Exit(1)
	}
	length, err := strconv.ParseInt(flag.Arg(3), 10, 64)
	if err != nil || length < 0 {
		log.Printf("bspatch-ra: invalid LEN %q", flag.Arg(3))
		os.Exit(1)
	}

	if err := run(oldpath, patchpath, start, length, os.Stdout); err != nil {
		log.Printf("bspatch-ra: %v", err)
		os.Exit(1)
	}
}

func run(oldpath, patchpath string, start, length int64, out io.Writer) error {
	r, err := bsdiffsx.Open(patchpath, oldpath)
	if err != nil {
		return err
	}
	defer r.Close()

	buf := make([]byte, length)
	n, err := r.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return err
	}
	if _, werr := out.Write(buf[:n]); werr != nil {
		return werr
	}
	if err == io.EOF {
		log.Printf("bspatch-ra: partial read, got %d of %d requested bytes (reached end of file)", n, length)
	}
	return nil
}
