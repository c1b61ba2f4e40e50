package events

import (
	"sync"

	"github.com/MosinFAM/forum-moderation/internal/models"

	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

// Hub рассылает события модерации подписчикам.
// Подписчик, который не успевает читать, отключается.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan models.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan models.Event]struct{})}
}

// Subscribe возвращает канал событий и функцию отписки
func (h *Hub) Subscribe() (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(ch) })
	}
}

// Publish не блокируется: переполненный подписчик удаляется и его канал закрывается
func (h *Hub) Publish(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			log.WithField("event", ev.Type).Warn("Dropping slow event subscriber")
			delete(h.subscribers, ch)
			close(ch)
		}
	}
}

// Len - число активных подписчиков
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) remove(ch chan models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}
