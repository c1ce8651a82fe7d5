package notify

import (
	"context"
	"sync"

	"ms-studyplanner/internal/models"
)

// Emitter manages live-notification fan-out. Each user owns a logical
// channel; every open connection of that user gets its own buffered Go
// channel, and Dispatch broadcasts to all of them. Delivery is best effort:
// a user with no connections simply misses the push (the durable log on the
// event remains the system of record), and a slow connection is skipped
// rather than blocking the caller.
type Emitter struct {
	clients map[string][]chan models.LiveNotification
	mu      sync.RWMutex
}

func NewEmitter() *Emitter {
	return &Emitter{
		clients: make(map[string][]chan models.LiveNotification),
	}
}

// Subscribe registers a connection for userID. The channel is removed and
// closed when ctx is cancelled (client disconnect).
func (e *Emitter) Subscribe(ctx context.Context, userID string) chan models.LiveNotification {
	clientChan := make(chan models.LiveNotification, 10)

	e.mu.Lock()
	e.clients[userID] = append(e.clients[userID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(userID, clientChan)
	}()

	return clientChan
}

// Dispatch pushes a notification to every connection of userID. Non-blocking
// and fire-and-forget by contract. The sends stay under the read lock so a
// disconnect cannot close a channel mid-send; removeClient takes the write
// lock and therefore cannot interleave.
func (e *Emitter) Dispatch(userID string, n models.LiveNotification) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[userID] {
		select {
		case clientChan <- n:
		default:
			// Buffer full, skip this connection.
		}
	}
}

// ClientCount returns how many connections userID currently has open.
func (e *Emitter) ClientCount(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[userID])
}

func (e *Emitter) removeClient(userID string, clientChan chan models.LiveNotification) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[userID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[userID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[userID]) == 0 {
		delete(e.clients, userID)
	}
}
