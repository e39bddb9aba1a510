package grid

import (
	"fmt"
	"math/rand"
	"runtime"

	"github.com/samcharles93/tessera/internal/logger"
)

// Config controls how a Launcher executes kernels.
type Config struct {
	// BlockSize is the number of lanes per block. Zero selects DefaultBlockSize.
	BlockSize int
	// Lanes selects serial or concurrent lane execution.
	Lanes LaneMode
	// Order selects the block schedule.
	Order Order
	// Workers caps the parallelism of OrderParallel. Zero uses GOMAXPROCS.
	Workers int
	// Seed drives the shuffled and interleaved orders.
	Seed int64
	// Logger receives launcher diagnostics. Nil discards them.
	Logger logger.Logger
}

// Launcher runs kernels over their grids.
type Launcher struct {
	cfg     Config
	workers int
	log     logger.Logger
}

// New validates cfg and returns a Launcher.
func New(cfg Config) (*Launcher, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.BlockSize < 1 || cfg.BlockSize&(cfg.BlockSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, cfg.BlockSize)
	}
	if cfg.Lanes != LanesSerial && cfg.Lanes != LanesConcurrent {
		return nil, fmt.Errorf("invalid lane mode %v", cfg.Lanes)
	}
	if cfg.Order < OrderSequential || cfg.Order > OrderParallel {
		return nil, fmt.Errorf("invalid block order %v", cfg.Order)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := logger.ForLauncher(cfg.Logger, cfg.BlockSize, cfg.Lanes.String(), cfg.Order.String())
	log.Debug("grid launcher ready", "workers", workers)
	return &Launcher{cfg: cfg, workers: workers, log: log}, nil
}

// MustNew is New for configurations known to be valid.
func MustNew(cfg Config) *Launcher {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// BlockSize is the number of lanes per block.
func (l *Launcher) BlockSize() int { return l.cfg.BlockSize }

// Config returns the effective configuration.
func (l *Launcher) Config() Config {
	cfg := l.cfg
	cfg.Workers = l.workers
	return cfg
}

// Run executes every block of k exactly once and returns when all of them
// have finished. There is no cancellation inside a launch. If any block
// panics the remaining blocks still run and Run then panics with a
// *BlockPanic describing the first failure.
func (l *Launcher) Run(k Kernel) {
	groups := k.Groups()
	n := groups.Count()
	if n == 0 {
		return
	}

	var fault *BlockPanic
	switch l.cfg.Order {
	case OrderSequential:
		for i := range n {
			if p := l.runBlock(k, groups.At(i), nil); p != nil && fault == nil {
				fault = p
			}
		}
	case OrderShuffled:
		rng := rand.New(rand.NewSource(l.cfg.Seed))
		for _, i := range rng.Perm(n) {
			if p := l.runBlock(k, groups.At(i), nil); p != nil && fault == nil {
				fault = p
			}
		}
	case OrderInterleaved:
		fault = l.runInterleaved(k, groups)
	case OrderParallel:
		fault = l.runParallel(k, groups)
	}
	if fault != nil {
		l.log.Error("kernel block panicked", "blocks", n, "block", fault.Block.String(), "error", fmt.Sprint(fault.Value))
		panic(fault)
	}
}

func (l *Launcher) runBlock(k Kernel, id Dim3, gate func()) (fault *BlockPanic) {
	defer func() {
		if r := recover(); r != nil {
			fault = &BlockPanic{Block: id, Value: r}
		}
	}()
	b := Block{ID: id, Size: l.cfg.BlockSize, lanes: l.cfg.Lanes, gate: gate}
	k.Block(&b)
	return nil
}

type blockEvent struct {
	index    int
	finished bool
	fault    *BlockPanic
}

// runInterleaved gives every block its own goroutine but lets exactly one of
// them run at a time. Control returns to the scheduler at every barrier,
// which then resumes a randomly chosen unfinished block.
func (l *Launcher) runInterleaved(k Kernel, groups Dim3) *BlockPanic {
	n := groups.Count()
	rng := rand.New(rand.NewSource(l.cfg.Seed))
	events := make(chan blockEvent)
	resume := make([]chan struct{}, n)

	for i := range n {
		resume[i] = make(chan struct{})
		gate := func() {
			events <- blockEvent{index: i}
			<-resume[i]
		}
		go func() {
			<-resume[i]
			p := l.runBlock(k, groups.At(i), gate)
			events <- blockEvent{index: i, finished: true, fault: p}
		}()
	}

	live := make([]int, n)
	for i := range live {
		live[i] = i
	}
	var first *BlockPanic
	for len(live) > 0 {
		pick := rng.Intn(len(live))
		resume[live[pick]] <- struct{}{}
		ev := <-events
		if !ev.finished {
			continue
		}
		if ev.fault != nil && first == nil {
			first = ev.fault
		}
		live[pick] = live[len(live)-1]
		live = live[:len(live)-1]
	}
	return first
}
