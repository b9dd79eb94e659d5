package job

// ParallelFor splits data in one chunk per worker and runs fn on every element, each chunk
// being a job of barrier. next, when not nil, waits for every chunk: create it with one
// dependency and release that dependency once ParallelFor returns.
func ParallelFor[T any](s *System, barrier *Barrier, name string, data []T, next *Job, fn func(data T)) {
	dataSize := len(data)
	if dataSize == 0 {
		return
	}
	workersCount := min(s.workers, dataSize)
	chunkSize := (dataSize + workersCount - 1) / workersCount

	for start := 0; start < dataSize; start += chunkSize {
		chunk := data[start:min(start+chunkSize, dataSize)]
		if next != nil {
			next.AddDependency(1)
		}
		// the chunk may run before CreateJob returns, so it releases next itself
		s.CreateJob(name, barrier, 0, func() {
			for _, item := range chunk {
				fn(item)
			}
			if next != nil {
				next.RemoveDependency()
			}
		})
	}
}

// Run executes fn on every element and waits for completion. It must not be called from a
// job.
func Run[T any](s *System, data []T, fn func(data T)) {
	barrier := NewBarrier()
	ParallelFor(s, barrier, "run", data, nil, fn)
	barrier.Wait()
}
