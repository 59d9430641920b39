package dispatch

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// Spawner runs a worker independently of the caller.  Implementations
// neither cap, track nor join the tasks they start.
type Spawner interface {
	Go(task func()) error
}

// GoSpawner starts each task on a fresh goroutine.  A panicking task
// terminates the process, as any unrecovered goroutine panic does.
type GoSpawner struct{}

// Go starts task and returns immediately.
func (GoSpawner) Go(task func()) error {
	go task()
	return nil
}

// PoolSpawner runs tasks on an unbounded ants pool, reusing idle
// goroutines.  A panic inside a task is handed to the panic handler
// instead of crashing the process.
type PoolSpawner struct {
	pool *ants.Pool
}

// NewPoolSpawner creates an unbounded pool.  onPanic receives the value
// recovered from a panicking task; it may be nil.
func NewPoolSpawner(onPanic func(any)) (*PoolSpawner, error) {
	var opts []ants.Option
	if onPanic != nil {
		opts = append(opts, ants.WithPanicHandler(onPanic))
	}
	p, err := ants.NewPool(-1, opts...)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &PoolSpawner{pool: p}, nil
}

// Go submits task to the pool.
func (s *PoolSpawner) Go(task func()) error {
	return s.pool.Submit(task)
}

// Running returns the number of tasks currently executing.
func (s *PoolSpawner) Running() int {
	return s.pool.Running()
}

// Release stops the pool from accepting tasks.  Tasks already running
// are not waited for.
func (s *PoolSpawner) Release() {
	s.pool.Release()
}
