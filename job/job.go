// Package job runs small functions on a fixed pool of goroutines, ordered by dependency
// counts.
//
// A job becomes runnable when its dependency count drops to zero. Workers never block on
// other jobs: a job that needs work done after it creates that work as new jobs or releases
// a successor. The only blocking call is Barrier.Wait, meant for the goroutine driving the
// simulation.
package job

import (
	"sync"
	"sync/atomic"
)

// DefaultWorkers is used when a system is created with fewer than one worker.
const DefaultWorkers = 1

// System is a pool of workers consuming an unbounded queue of runnable jobs.
type System struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Job
	closed  bool
	workers int
	wg      sync.WaitGroup

	executed atomic.Uint64
}

// NewSystem starts workers goroutines.
func NewSystem(workers int) *System {
	workers = max(DefaultWorkers, workers)
	s := &System{workers: workers}
	s.cond = sync.NewCond(&s.mu)

	for range workers {
		s.wg.Add(1)
		go s.work()
	}
	return s
}

// Workers returns the number of worker goroutines.
func (s *System) Workers() int {
	return s.workers
}

// Executed returns the number of jobs run since the system started.
func (s *System) Executed() uint64 {
	return s.executed.Load()
}

// Shutdown runs the jobs still queued, then stops the workers. Jobs that become runnable
// afterwards run on the goroutine releasing them.
func (s *System) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *System) work() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		j.run()
	}
}

func (s *System) enqueue(j *Job) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		j.run()
		return
	}
	s.queue = append(s.queue, j)
	s.cond.Signal()
	s.mu.Unlock()
}

// CreateJob creates a job waiting for dependencies releases. A job created with no
// dependency is queued immediately. When barrier is not nil, it waits for the job.
func (s *System) CreateJob(name string, barrier *Barrier, dependencies int, fn func()) *Job {
	j := &Job{name: name, fn: fn, system: s, barrier: barrier}
	j.dependencies.Store(int32(dependencies))
	if barrier != nil {
		barrier.wg.Add(1)
	}
	if dependencies <= 0 {
		s.enqueue(j)
	}
	return j
}

// Job is a function run once all its dependencies are released.
type Job struct {
	name    string
	fn      func()
	system  *System
	barrier *Barrier

	dependencies atomic.Int32

	mu         sync.Mutex
	done       bool
	successors []*Job
}

func (j *Job) Name() string {
	return j.name
}

// Done reports whether the job has run.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// AddDependency delays a job that is not runnable yet.
func (j *Job) AddDependency(count int) {
	j.dependencies.Add(int32(count))
}

// RemoveDependency releases one dependency, queuing the job when none remains.
func (j *Job) RemoveDependency() {
	if j.dependencies.Add(-1) == 0 {
		j.system.enqueue(j)
	}
}

// AddSuccessor makes next wait for j. Nothing happens if j has already run.
func (j *Job) AddSuccessor(next *Job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done {
		return
	}
	next.AddDependency(1)
	j.successors = append(j.successors, next)
}

func (j *Job) run() {
	if j.fn != nil {
		j.fn()
	}
	j.system.executed.Add(1)

	j.mu.Lock()
	j.done = true
	successors := j.successors
	j.successors = nil
	j.mu.Unlock()

	for _, next := range successors {
		next.RemoveDependency()
	}
	if j.barrier != nil {
		j.barrier.wg.Done()
	}
}

// Barrier tracks a group of jobs, including jobs created by jobs of the group.
type Barrier struct {
	wg sync.WaitGroup
}

func NewBarrier() *Barrier {
	return &Barrier{}
}

// Wait blocks until every job of the barrier has run. It must not be called from a job.
func (b *Barrier) Wait() {
	b.wg.Wait()
}
