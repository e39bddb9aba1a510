package grid

import (
	"runtime"
	"sync"
)

// blockTask runs the blocks with linear ids [start, end) of one launch.
type blockTask struct {
	l          *Launcher
	k          Kernel
	groups     Dim3
	start, end int
	done       chan *BlockPanic
}

type blockPool struct {
	size      int
	tasks     chan blockTask
	doneSlots chan chan *BlockPanic
}

var (
	blockWorkPool *blockPool
	blockPoolOnce sync.Once
)

func getBlockPool() *blockPool {
	blockPoolOnce.Do(func() {
		blockWorkPool = newBlockPool(runtime.GOMAXPROCS(0))
	})
	return blockWorkPool
}

func newBlockPool(size int) *blockPool {
	if size < 1 {
		size = 1
	}
	p := &blockPool{
		size:      size,
		tasks:     make(chan blockTask, size*2),
		doneSlots: make(chan chan *BlockPanic, size),
	}
	for range size {
		p.doneSlots <- make(chan *BlockPanic, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				task.done <- task.run()
			}
		}()
	}
	return p
}

// run executes the task's blocks and reports the first panic, if any. Later
// blocks of the range still run so every launch covers the whole grid.
func (t blockTask) run() *BlockPanic {
	var first *BlockPanic
	for i := t.start; i < t.end; i++ {
		if p := t.l.runBlock(t.k, t.groups.At(i), nil); p != nil && first == nil {
			first = p
		}
	}
	return first
}

// runParallel splits the grid into contiguous chunks, one per worker, and
// waits for all of them.
func (l *Launcher) runParallel(k Kernel, groups Dim3) *BlockPanic {
	n := groups.Count()
	pool := getBlockPool()
	workers := min(l.workers, pool.size, n)
	if workers <= 1 {
		return blockTask{l: l, k: k, groups: groups, start: 0, end: n}.run()
	}

	chunk := (n + workers - 1) / workers
	done := <-pool.doneSlots

	active := 0
	for i := range workers {
		start := i * chunk
		end := min(start+chunk, n)
		if start >= end {
			break
		}
		active++
		pool.tasks <- blockTask{l: l, k: k, groups: groups, start: start, end: end, done: done}
	}

	var first *BlockPanic
	for range active {
		if p := <-done; p != nil && first == nil {
			first = p
		}
	}
	pool.doneSlots <- done
	return first
}
