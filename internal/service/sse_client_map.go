package service

import (
	"sync"
)

func NewSSEClientMap[T any]() *SSEClientMap[T] {
	return &SSEClientMap[T]{
		clients: make(map[string]chan T),
	}
}

// SSEClientMap fans run events out to every connected stream client.
type SSEClientMap[T any] struct {
	m       sync.Mutex
	clients map[string]chan T
}

func (cm *SSEClientMap[T]) AddClient(uid string) {
	cm.m.Lock()
	defer cm.m.Unlock()
	cm.clients[uid] = make(chan T, 16)
}

func (cm *SSEClientMap[T]) RemoveClient(uid string) {
	cm.m.Lock()
	defer cm.m.Unlock()
	close(cm.clients[uid])
	delete(cm.clients, uid)
	if len(cm.clients) == 0 {
		cm.clients = make(map[string]chan T)
	}
}

// SendToClients never blocks the run loop: a client whose buffer is
// full misses the message. The full output is always in the store.
func (cm *SSEClientMap[T]) SendToClients(message T) {
	cm.m.Lock()
	defer cm.m.Unlock()
	for i := range cm.clients {
		select {
		case cm.clients[i] <- message:
		default:
		}
	}
}

func (cm *SSEClientMap[T]) GetClient(uid string) chan T {
	cm.m.Lock()
	defer cm.m.Unlock()
	return cm.clients[uid]
}
