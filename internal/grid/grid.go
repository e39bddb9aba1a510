// Package grid models data-parallel kernel execution: a launch covers a 3-D
// grid of independent blocks, each block is a fixed number of cooperating
// lanes that share block-local scratch and synchronise at full-block
// barriers. Blocks never synchronise with each other and may run in any
// order, which the launcher can exercise deliberately.
package grid

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultBlockSize is the number of lanes per block used by the kernels
// unless configured otherwise.
const DefaultBlockSize = 128

// ErrBlockSize reports a block size that is not a positive power of two.
var ErrBlockSize = errors.New("block size must be a positive power of two")

// Dim3 is a position or extent in the launch grid.
type Dim3 struct {
	X, Y, Z int
}

// Count is the number of cells covered by d.
func (d Dim3) Count() int {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return 0
	}
	return d.X * d.Y * d.Z
}

// At returns the i-th cell of d with X varying fastest.
func (d Dim3) At(i int) Dim3 {
	return Dim3{X: i % d.X, Y: (i / d.X) % d.Y, Z: i / (d.X * d.Y)}
}

func (d Dim3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", d.X, d.Y, d.Z)
}

// GroupsFor converts a grid measured in invocations into a grid measured in
// blocks of blockSize lanes along X.
func GroupsFor(invocations Dim3, blockSize int) Dim3 {
	return Dim3{
		X: (invocations.X + blockSize - 1) / blockSize,
		Y: invocations.Y,
		Z: invocations.Z,
	}
}

// Kernel is a program launched over a grid of blocks.
type Kernel interface {
	// Groups is the number of blocks along each axis.
	Groups() Dim3
	// Block executes the body of a single block.
	Block(b *Block)
}

// LaneMode selects how the lanes of a block execute between barriers.
type LaneMode int

const (
	// LanesSerial runs lanes one after another on the block's goroutine.
	LanesSerial LaneMode = iota
	// LanesConcurrent runs every lane on its own goroutine between barriers.
	LanesConcurrent
)

func (m LaneMode) String() string {
	switch m {
	case LanesSerial:
		return "serial"
	case LanesConcurrent:
		return "concurrent"
	default:
		return fmt.Sprintf("LaneMode(%d)", int(m))
	}
}

// ParseLaneMode parses the names returned by LaneMode.String.
func ParseLaneMode(s string) (LaneMode, error) {
	switch strings.ToLower(s) {
	case "", "serial":
		return LanesSerial, nil
	case "concurrent":
		return LanesConcurrent, nil
	default:
		return 0, fmt.Errorf("unknown lane mode %q", s)
	}
}

// Order selects how blocks are scheduled during a launch.
type Order int

const (
	// OrderSequential runs blocks in grid order on the caller's goroutine.
	OrderSequential Order = iota
	// OrderShuffled runs blocks on the caller's goroutine in a seeded random order.
	OrderShuffled
	// OrderInterleaved runs one block at a time but switches between blocks
	// at every barrier in a seeded random order.
	OrderInterleaved
	// OrderParallel spreads blocks over the worker pool.
	OrderParallel
)

var orderNames = [...]string{"sequential", "shuffled", "interleaved", "parallel"}

func (o Order) String() string {
	if o >= 0 && int(o) < len(orderNames) {
		return orderNames[o]
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// ParseOrder parses the names returned by Order.String.
func ParseOrder(s string) (Order, error) {
	if s == "" {
		return OrderParallel, nil
	}
	for i, name := range orderNames {
		if strings.EqualFold(s, name) {
			return Order(i), nil
		}
	}
	return 0, fmt.Errorf("unknown block order %q", s)
}

// Orders lists every block order.
func Orders() []Order {
	return []Order{OrderSequential, OrderShuffled, OrderInterleaved, OrderParallel}
}

// BlockPanic carries a panic raised inside a block back to the goroutine
// that launched the kernel.
type BlockPanic struct {
	Block Dim3
	Value any
}

func (p *BlockPanic) Error() string {
	return fmt.Sprintf("panic in block %s: %v", p.Block, p.Value)
}
