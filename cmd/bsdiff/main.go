// Command bsdiff writes a classical streaming BSDIFF40 patch describing the
// difference between old and new.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/blkmatch/bsdiffx/pkg/bsdiff"
)

func main() {
	flag.Usage = func() {
		log.Printf("usage: bsdiff old new patch")
	}
	flag.Parse()
	if flag.NArg() != 3 {
		flag.Usage()
		os.Exit(1)
	}

	oldpath, newpath, patchpath := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	if err := run(oldpath, newpath, patchpath); err != nil {
		log.Printf("bsdiff: %v", err)
		os.Exit(1)
	}
}

func run(oldpath, newpath, patchpath string) error {
	oldbs, err := os.ReadFile(oldpath)
	if err != nil {
		return err
	}
	newbs, err := os.ReadFile(newpath)
	if err != nil {
		return err
	}

	patch, err := bsdiff.Bytes(oldbs, newbs)
	if err != nil {
		return err
	}

	return os.WriteFile(patchpath, patch, 0644)
}
