package v1

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pontoweb/auth-service/internal/core/domain"
)

// EventType names the transitions the backend auth channel emits.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event is a backend auth-channel notification.
type Event struct {
	Type EventType
}

// Broadcaster consumes backend auth-channel events and republishes the
// resolved session to its subscribers. Session resolution runs in its own
// goroutine so handlers never block event dispatch; subscribers must
// tolerate eventually-consistent updates. The subscriber registry is
// mutex-guarded and Unsubscribe is idempotent, so teardown never races a
// late notification into a destroyed consumer.
type Broadcaster struct {
	resolve func(context.Context) *domain.User

	mu     sync.Mutex
	nextID int
	subs   map[int]func(*domain.User)
	wg     sync.WaitGroup
}

// NewBroadcaster returns a Broadcaster that resolves the current session
// through resolve (normally AuthService.CurrentSession).
func NewBroadcaster(resolve func(context.Context) *domain.User) *Broadcaster {
	return &Broadcaster{
		resolve: resolve,
		subs:    make(map[int]func(*domain.User)),
	}
}

// Subscribe registers fn to receive session updates and returns a handle
// for Unsubscribe. fn receives nil when the session is gone.
func (b *Broadcaster) Subscribe(fn func(*domain.User)) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	return id
}

// Unsubscribe removes the subscriber with the given handle. Unsubscribing
// an unknown or already-removed handle is a no-op.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Run consumes events until ctx is done or the channel closes. It is meant
// to run in its own goroutine for the life of the process.
func (b *Broadcaster) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()
			return
		case ev, ok := <-events:
			if !ok {
				b.wg.Wait()
				return
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventSignedIn, EventTokenRefreshed:
		// Fire-and-forget relative to dispatch: resolution may hit the
		// backend and must not stall the event loop.
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.publish(b.resolve(ctx))
		}()
	case EventSignedOut:
		b.publish(nil)
	default:
		log.Warn().Str("event", string(ev.Type)).Msg("Unknown auth channel event")
	}
}

// publish delivers user to every subscriber. The registry is snapshotted
// under the lock; callbacks run outside it.
func (b *Broadcaster) publish(user *domain.User) {
	b.mu.Lock()
	fns := make([]func(*domain.User), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}
