package preview

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Scheduler queues preview generation without blocking the caller.
type Scheduler interface {
	Schedule(fileID uint64)
}

// NoopScheduler discards every request.
type NoopScheduler struct{}

func (NoopScheduler) Schedule(uint64) {}

// LocalScheduler runs previews on an in-process worker pool.
type LocalScheduler struct {
	runner *Runner
	jobs   chan uint64
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewLocalScheduler starts workers goroutines draining a queue of queueSize.
func NewLocalScheduler(runner *Runner, workers, queueSize int) *LocalScheduler {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &LocalScheduler{
		runner: runner,
		jobs:   make(chan uint64, queueSize),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for id := range s.jobs {
				s.runner.Run(id)
			}
		}()
	}
	return s
}

// Schedule enqueues a file; a full queue drops the request.
func (s *LocalScheduler) Schedule(fileID uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.jobs <- fileID:
	default:
		log.Printf("preview: queue full, dropping file %d", fileID)
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (s *LocalScheduler) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.jobs)
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// Message is the queue payload for a preview job.
type Message struct {
	FileID uint64 `json:"file_id"`
}

// Publisher sends preview jobs to a broker.
type Publisher interface {
	PublishPreview(ctx context.Context, body []byte) error
}

// QueueScheduler hands jobs to a message broker for cmd/worker to consume.
type QueueScheduler struct {
	publisher Publisher
	timeout   time.Duration
}

// NewQueueScheduler creates a broker-backed scheduler.
func NewQueueScheduler(publisher Publisher) *QueueScheduler {
	return &QueueScheduler{publisher: publisher, timeout: 5 * time.Second}
}

// Schedule publishes in the background; failures are logged.
func (s *QueueScheduler) Schedule(fileID uint64) {
	body, err := json.Marshal(Message{FileID: fileID})
	if err != nil {
		log.Printf("preview: encode job %d: %v", fileID, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.publisher.PublishPreview(ctx, body); err != nil {
			log.Printf("preview: publish job %d: %v", fileID, err)
		}
	}()
}
