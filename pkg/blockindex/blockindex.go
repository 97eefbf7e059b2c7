// Package blockindex implements the block-match index (spec §4.D): cut a
// buffer into fixed-size blocks, digest each block in parallel with
// pkg/psimm, and find the best-matching block for a query buffer. New to
// this module; grounded on
// _examples/original_source/lib/blockmatch/blockmatch_index.c for the
// block-cutting rule (residue absorbed into the last block) and
// trunk/lib/blockmatch/blockmatch_index.c for the linear nearest-block
// scan.
package blockindex

import (
	"github.com/pkg/errors"

	"github.com/blkmatch/bsdiffx/pkg/parallel"
	"github.com/blkmatch/bsdiffx/pkg/psimm"
	"github.com/blkmatch/bsdiffx/pkg/util"
)

// Index holds a digest context, the block length used to cut the indexed
// buffer, and one owned digest per block.
type Index struct {
	ctx      *psimm.Context
	blockLen int
	nblocks  int
	digests  [][]float64
	buf      []byte
}

// BlockCount returns the number of blocks the index was built over.
func (idx *Index) BlockCount() int { return idx.nblocks }

// blockBounds returns the half-open byte range [start,end) covered by
// block i, absorbing any residue into the final block per spec §3: if
// len(buf) mod blockLen >= blockLen/2 an extra block holds it, else the
// final block extends up to 3*blockLen/2 - 1 beyond its nominal start.
func blockBounds(bufLen, blockLen, nblocks, i int) (start, end int) {
	start = i * blockLen
	if i == nblocks-1 {
		end = bufLen
	} else {
		end = start + blockLen
	}
	return start, end
}

func countBlocks(bufLen, blockLen int) int {
	if bufLen == 0 {
		return 0
	}
	full := bufLen / blockLen
	residue := bufLen % blockLen
	if residue == 0 {
		return full
	}
	if residue >= blockLen/2 {
		return full + 1
	}
	return full // residue folded into the last (widened) block
}

// Build cuts buf into blocks of blockLen bytes (the last block absorbing
// any residue; a buf shorter than half a block yields no blocks at all),
// computes a digLen-length psimm digest per block across
// workers goroutines, and returns the resulting Index.
func Build(buf []byte, blockLen, digLen, workers int, seed [32]byte) (*Index, error) {
	if blockLen <= 0 {
		return nil, errors.New("blockindex: blockLen must be positive")
	}
	ctx, err := psimm.NewContext(seed, digLen)
	if err != nil {
		return nil, errors.Wrap(err, "blockindex: building digest context")
	}

	nblocks := countBlocks(len(buf), blockLen)
	idx := &Index{ctx: ctx, blockLen: blockLen, nblocks: nblocks, buf: buf}
	if nblocks == 0 {
		return idx, nil
	}
	idx.digests = make([][]float64, nblocks)

	err = parallel.ForEach(workers, nblocks, func(i int) error {
		start, end := blockBounds(len(buf), blockLen, nblocks, i)
		idx.digests[i] = ctx.Digest(buf[start:end])
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "blockindex: digesting blocks")
	}
	for i, d := range idx.digests {
		util.Assert(d != nil, "blockindex: block %d never got a digest", i)
	}
	return idx, nil
}

// Search digests query and returns the byte offset i*blockLen of the
// block whose digest maximizes the similarity score. Ties go to the
// smallest i. Returns -1 if the index holds no blocks.
func (idx *Index) Search(query []byte) (int64, error) {
	if idx.nblocks == 0 {
		return -1, nil
	}
	qd := idx.ctx.Digest(query)

	best := -1
	var bestScore float64
	for i, d := range idx.digests {
		s := psimm.Score(qd, d)
		if best == -1 || s > bestScore {
			best = i
			bestScore = s
		}
	}
	if best == -1 {
		return -1, nil
	}
	return int64(best) * int64(idx.blockLen), nil
}
