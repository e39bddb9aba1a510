package grid

import "sync"

// Block is one group of cooperating lanes. Kernel bodies express every
// region between two barriers as a Step.
type Block struct {
	// ID is the block's position in the grid.
	ID Dim3
	// Size is the number of lanes.
	Size int

	lanes LaneMode
	// gate parks the block before every step in interleaved order.
	gate func()
}

// Step runs fn once for every lane and then waits at a full-block barrier.
// Writes made by any lane inside fn are visible to every lane in later steps.
func (b *Block) Step(fn func(lane int)) {
	if b.gate != nil {
		b.gate()
	}
	if b.lanes == LanesConcurrent && b.Size > 1 {
		b.stepConcurrent(fn)
		return
	}
	for lane := range b.Size {
		fn(lane)
	}
}

func (b *Block) stepConcurrent(fn func(lane int)) {
	var (
		wg    sync.WaitGroup
		once  sync.Once
		fault any
	)
	for lane := range b.Size {
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { fault = r })
				}
			}()
			fn(lane)
		})
	}
	wg.Wait()
	if fault != nil {
		panic(fault)
	}
}

// Invocation is the global invocation id of a lane of this block.
func (b *Block) Invocation(lane int) Dim3 {
	return Dim3{X: b.ID.X*b.Size + lane, Y: b.ID.Y, Z: b.ID.Z}
}
