package v1

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pontoweb/auth-service/internal/core/domain"
)

func TestBroadcaster_SignedInRepublishesResolvedUser(t *testing.T) {
	resolved := &domain.User{ID: "9999", Role: domain.RoleAdmin}
	b := NewBroadcaster(func(ctx context.Context) *domain.User { return resolved })

	got := make(chan *domain.User, 1)
	b.Subscribe(func(u *domain.User) { got <- u })

	events := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx, events)
		close(done)
	}()

	events <- Event{Type: EventSignedIn}

	select {
	case u := <-got:
		require.Equal(t, resolved, u)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never notified")
	}

	close(events)
	<-done
}

func TestBroadcaster_TokenRefreshedRepublishes(t *testing.T) {
	resolved := &domain.User{ID: "9999", Role: domain.RoleAdmin}
	b := NewBroadcaster(func(ctx context.Context) *domain.User { return resolved })

	got := make(chan *domain.User, 1)
	b.Subscribe(func(u *domain.User) { got <- u })

	events := make(chan Event, 1)
	events <- Event{Type: EventTokenRefreshed}
	close(events)

	b.Run(context.Background(), events)

	select {
	case u := <-got:
		require.Equal(t, resolved, u)
	default:
		t.Fatal("subscriber never notified")
	}
}

func TestBroadcaster_SignedOutPublishesAbsent(t *testing.T) {
	b := NewBroadcaster(func(ctx context.Context) *domain.User {
		t.Error("resolve must not run on SIGNED_OUT")
		return nil
	})

	var got []*domain.User
	b.Subscribe(func(u *domain.User) { got = append(got, u) })

	events := make(chan Event, 1)
	events <- Event{Type: EventSignedOut}
	close(events)
	b.Run(context.Background(), events)

	require.Len(t, got, 1)
	require.Nil(t, got[0])
}

func TestBroadcaster_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster(func(ctx context.Context) *domain.User { return nil })

	var calls int
	id := b.Subscribe(func(u *domain.User) { calls++ })

	b.Unsubscribe(id)
	b.Unsubscribe(id)
	b.Unsubscribe(42) // never issued

	events := make(chan Event, 1)
	events <- Event{Type: EventSignedOut}
	close(events)
	b.Run(context.Background(), events)

	require.Zero(t, calls, "unsubscribed consumer must not be notified")
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewBroadcaster(func(ctx context.Context) *domain.User { return nil })

	var first, second int
	b.Subscribe(func(u *domain.User) { first++ })
	keep := b.Subscribe(func(u *domain.User) { second++ })
	_ = keep

	events := make(chan Event, 2)
	events <- Event{Type: EventSignedOut}
	events <- Event{Type: EventSignedOut}
	close(events)
	b.Run(context.Background(), events)

	require.Equal(t, 2, first)
	require.Equal(t, 2, second)
}

func TestBroadcaster_UnknownEventIsIgnored(t *testing.T) {
	b := NewBroadcaster(func(ctx context.Context) *domain.User { return nil })

	var calls int
	b.Subscribe(func(u *domain.User) { calls++ })

	events := make(chan Event, 1)
	events <- Event{Type: "USER_UPDATED"}
	close(events)
	b.Run(context.Background(), events)

	require.Zero(t, calls)
}

func TestBroadcaster_RunStopsOnContextCancel(t *testing.T) {
	b := NewBroadcaster(func(ctx context.Context) *domain.User { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event)
	done := make(chan struct{})
	go func() {
		b.Run(ctx, events)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}
