package docstore

import (
	"context"
	"sync"
)

// Snapshot is one emission of a Subscription: the full query result at some
// point in time, or the error that prevented reading it.
type Snapshot struct {
	Docs []*Document
	Err  error
}

// Subscription is a live query. Snapshots arrive on C until Cancel is called
// or the context passed to Subscribe is done, after which C is closed.
type Subscription struct {
	ch     chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// C returns the snapshot channel.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Done is closed once the subscription has released its listener.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the subscription and blocks until its listener is released.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
	<-s.done
}

type fetchFunc func(ctx context.Context, q Query) ([]*Document, error)

// subscribe registers on feed before the first fetch so no change between
// the initial read and the listen can be missed.
func subscribe(ctx context.Context, q Query, feed ChangeFeed, fetch fetchFunc) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, release, err := feed.Listen(ctx, q.Collection)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		ch:     make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.ch)
		defer release()
		for {
			docs, err := fetch(ctx, q)
			if ctx.Err() != nil {
				return
			}
			select {
			case sub.ch <- Snapshot{Docs: docs, Err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-changes:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}
