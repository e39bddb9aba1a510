package grid

import (
	"sync"

	"github.com/samcharles93/tessera/internal/vec"
)

// Reduce sums every buffer into its element 0 with a fixed halving tree:
// for stride = Size/2 down to 1, lanes below stride add the element stride
// positions above them, then the block meets at a barrier. The tree shape
// depends only on the block size, so results are reproducible across runs
// and block orders. Each buffer must hold at least Size elements.
func Reduce(b *Block, bufs ...[]vec.Vec4) {
	for stride := b.Size / 2; stride >= 1; stride /= 2 {
		b.Step(func(lane int) {
			if lane >= stride {
				return
			}
			for _, s := range bufs {
				s[lane] = s[lane].Add(s[lane+stride])
			}
		})
	}
}

var scratchPool = sync.Pool{
	New: func() any { return new([]vec.Vec4) },
}

// Scratch returns block-local storage for n lanes. The contents are
// unspecified; every lane must write its slot before a reduction reads it.
// Release the slice when the block finishes.
func Scratch(n int) []vec.Vec4 {
	p := scratchPool.Get().(*[]vec.Vec4)
	if cap(*p) < n {
		*p = make([]vec.Vec4, n)
	}
	return (*p)[:n]
}

// Release returns scratch obtained from Scratch to the pool.
func Release(s []vec.Vec4) {
	s = s[:0]
	scratchPool.Put(&s)
}
