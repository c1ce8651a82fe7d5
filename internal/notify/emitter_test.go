package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-studyplanner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_ReachesEveryConnectionOfUser(t *testing.T) {
	e := NewEmitter()
	ctx := context.Background()

	laptop := e.Subscribe(ctx, "user-1")
	phone := e.Subscribe(ctx, "user-1")
	require.Equal(t, 2, e.ClientCount("user-1"))

	n := models.LiveNotification{Title: "Reminder", Message: "Algorithms exam starts in 60 minutes", Kind: "reminder"}
	e.Dispatch("user-1", n)

	assert.Equal(t, n, <-laptop)
	assert.Equal(t, n, <-phone)
}

func TestDispatch_DoesNotLeakAcrossUsers(t *testing.T) {
	e := NewEmitter()
	ctx := context.Background()

	mine := e.Subscribe(ctx, "user-1")
	theirs := e.Subscribe(ctx, "user-2")

	e.Dispatch("user-1", models.LiveNotification{Title: "Timer", Kind: "timer-start"})

	select {
	case <-mine:
	case <-time.After(time.Second):
		t.Fatal("expected a notification for user-1")
	}

	select {
	case n := <-theirs:
		t.Fatalf("user-2 received user-1's notification: %+v", n)
	default:
	}
}

func TestDispatch_NoSubscribersIsSilentlyDropped(t *testing.T) {
	e := NewEmitter()

	// Best effort by contract, must not block or panic.
	e.Dispatch("nobody-home", models.LiveNotification{Title: "Reminder", Kind: "reminder"})
	assert.Zero(t, e.ClientCount("nobody-home"))
}

func TestDispatch_FullBufferSkipsSlowConnection(t *testing.T) {
	e := NewEmitter()
	ctx := context.Background()

	slow := e.Subscribe(ctx, "user-1")
	for i := 0; i < cap(slow)+5; i++ {
		e.Dispatch("user-1", models.LiveNotification{Title: "Reminder", Kind: "reminder"})
	}

	assert.Len(t, slow, cap(slow), "overflow is dropped, not queued")
}

func TestDispatch_SurvivesConcurrentDisconnects(t *testing.T) {
	e := NewEmitter()

	// Clients connecting and dropping in a tight loop while notifications
	// stream out. A dispatch racing a disconnect must never hit the closed
	// channel.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			ctx, cancel := context.WithCancel(context.Background())
			e.Subscribe(ctx, "user-1")
			cancel()
		}
	}()

	for i := 0; i < 5000; i++ {
		e.Dispatch("user-1", models.LiveNotification{Title: "Reminder", Kind: "reminder"})
	}

	close(stop)
	wg.Wait()

	require.Eventually(t, func() bool {
		return e.ClientCount("user-1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSubscribe_ContextCancelRemovesConnection(t *testing.T) {
	e := NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.Subscribe(ctx, "user-1")
	require.Equal(t, 1, e.ClientCount("user-1"))

	cancel()

	require.Eventually(t, func() bool {
		return e.ClientCount("user-1") == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-ch
	assert.False(t, open, "channel is closed on disconnect")
}
