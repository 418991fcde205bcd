package net

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// WorkerFunction processes one queued connection task.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of goroutines pulling from a shared
// task channel, the same fixed-size dispatch pattern the teacher used
// for its TCP session handlers (internal/worker.go), relocated here
// to back internal/net.Server's connection handling instead of a
// standalone prototype server.
type WorkerPool struct {
	n     int
	tasks chan any
	work  WorkerFunction
}

func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

// Submit queues a task for a worker to pick up.
func (pool *WorkerPool) Submit(task any) {
	pool.tasks <- task
}

// Setup starts pool.n workers, each running until t dies.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.worker(t)
		})
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := pool.work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
			}
		}
	}
}
