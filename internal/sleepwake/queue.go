package sleepwake

import (
	"sync"

	"github.com/synapsefold/cognition-core/pkg/models"
)

// MemoryQueue is the default PendingQueue: a mutex-guarded FIFO slice.
type MemoryQueue struct {
	mu      sync.Mutex
	packets []*models.CognitionPacket
}

// NewMemoryQueue constructs an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(packet *models.CognitionPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = append(q.packets, packet)
}

// Drain returns and clears all queued packets, in FIFO order.
func (q *MemoryQueue) Drain() []*models.CognitionPacket {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.packets
	q.packets = nil
	return out
}
