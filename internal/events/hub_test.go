package events

import (
	"testing"
	"time"

	"github.com/MosinFAM/forum-moderation/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestHub_PublishToSubscribers(t *testing.T) {
	hub := NewHub()
	first, unsubFirst := hub.Subscribe()
	second, unsubSecond := hub.Subscribe()
	defer unsubFirst()
	defer unsubSecond()

	hub.Publish(models.Event{Type: models.EventStatusChanged, PostID: "1", Status: models.StatusApproved})

	for _, ch := range []<-chan models.Event{first, second} {
		select {
		case ev := <-ch:
			assert.Equal(t, "1", ev.PostID)
			assert.Equal(t, models.StatusApproved, ev.Status)
		case <-time.After(time.Second):
			assert.Fail(t, "Failed to receive event")
		}
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe()
	assert.Equal(t, 1, hub.Len())

	unsub()
	unsub()

	assert.Equal(t, 0, hub.Len())
	_, ok := <-ch
	assert.False(t, ok)

	// Публикация без подписчиков не блокируется
	hub.Publish(models.Event{Type: models.EventDeleted, PostID: "1"})
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	slow, unsub := hub.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer+1; i++ {
		hub.Publish(models.Event{Type: models.EventCreated, PostID: "1"})
	}

	assert.Equal(t, 0, hub.Len())
	received := 0
	for range slow {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
}
