// Command bsdiff-big writes a seekable BSDIFFSX patch for large files,
// using the block-index-backed multi-window aligner (pkg/alignmulti)
// instead of a single whole-file suffix sort.
package main

import (
	"flag"
	"log"
	"os"
	"runtime"

	"github.com/blkmatch/bsdiffx/pkg/alignmulti"
	"github.com/blkmatch/bsdiffx/pkg/bsdiffsx"
)

const (
	minBlockLen = 1 << 9
	maxBlockLen = 1 << 28
	minDigLen   = 16
	maxDigLen   = 65536
	minWorkers  = 1
	maxWorkers  = 64
)

// digestSeed is fixed rather than random so that bsdiff-big's output is
// reproducible across runs on the same inputs.
var digestSeed [32]byte

func main() {
	blockLen := flag.Int("B", 1<<20, "block size, in [2^9, 2^28]")
	digLen := flag.Int("L", 8000, "digest length, in [16, 65536]")
	workers := flag.Int("P", 1, "worker count, in [1, 64]")
	flag.Usage = func() {
		log.Printf("usage: bsdiff-big [-B blocksize] [-L diglen] [-P ncores] old new patch")
	}
	flag.Parse()
	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(1)
	}

	if *blockLen < minBlockLen || *blockLen > maxBlockLen {
		log.Printf("bsdiff-big: -B must be in [%d, %d]", minBlockLen, maxBlockLen)
		os.Exit(1)
	}
	if *digLen < minDigLen || *digLen > maxDigLen {
		log.Printf("bsdiff-big: -L must be in [%d, %d]", minDigLen, maxDigLen)
		os.Exit(1)
	}
	if *workers < minWorkers || *workers > maxWorkers {
		log.Printf("bsdiff-big: -P must be in [%d, %d]", minWorkers, maxWorkers)
		os.Exit(1)
	}

	oldpath, newpath, patchpath := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	if err := run(oldpath, newpath, patchpath, *blockLen, *digLen, *workers); err != nil {
		log.Printf("bsdiff-big: %v", err)
		os.Exit(1)
	}
}

func run(oldpath, newpath, patchpath string, blockLen, digLen, workers int) error {
	oldbs, err := os.ReadFile(oldpath)
	if err != nil {
		return err
	}
	newbs, err := os.ReadFile(newpath)
	if err != nil {
		return err
	}

	if workers == 0 {
		workers = runtime.NumCPU()
	}

	alignment, err := alignmulti.AlignMulti(oldbs, newbs, blockLen, digLen, workers, digestSeed)
	if err != nil {
		return err
	}

	patchf, err := os.Create(patchpath)
	if err != nil {
		return err
	}
	if err := bsdiffsx.Write(alignment, oldbs, newbs, blockLen, patchf); err != nil {
		_ = patchf.Close()
		os.Remove(patchpath)
		return err
	}
	return patchf.Close()
}
