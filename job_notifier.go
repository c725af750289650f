package main

import (
	"context"
	"sync"

	"github.com/remeh/sizedwaitgroup"
)

// jobNotifier fans new jobs out to subscribers. Sends never block: a
// subscriber whose buffer is full misses the update and picks up the next
// one.
type jobNotifier[J MiningJob] struct {
	subsMu sync.Mutex
	subs   map[chan *JobWrapper[J]]struct{}

	queue    chan *JobWrapper[J]
	wg       sizedwaitgroup.SizedWaitGroup
	started  bool
	dropped  uint64
	notified uint64
}

func newJobNotifier[J MiningJob]() *jobNotifier[J] {
	return &jobNotifier[J]{
		subs:  make(map[chan *JobWrapper[J]]struct{}),
		queue: make(chan *JobWrapper[J], jobNotifyQueueDepth),
	}
}

func (n *jobNotifier[J]) Subscribe() chan *JobWrapper[J] {
	ch := make(chan *JobWrapper[J], jobSubscriberBuffer)
	n.subsMu.Lock()
	n.subs[ch] = struct{}{}
	n.subsMu.Unlock()
	return ch
}

func (n *jobNotifier[J]) Unsubscribe(ch chan *JobWrapper[J]) {
	n.subsMu.Lock()
	if _, ok := n.subs[ch]; ok {
		delete(n.subs, ch)
		close(ch)
	}
	n.subsMu.Unlock()
}

func (n *jobNotifier[J]) Subscribers() int {
	n.subsMu.Lock()
	defer n.subsMu.Unlock()
	return len(n.subs)
}

// Start runs the dispatch worker. One worker keeps deliveries in the order
// jobs were notified.
func (n *jobNotifier[J]) Start(ctx context.Context) {
	n.subsMu.Lock()
	if n.started {
		n.subsMu.Unlock()
		return
	}
	n.started = true
	n.subsMu.Unlock()

	n.wg = sizedwaitgroup.New(1)
	n.wg.Add()
	go n.worker(ctx)
	logger.Info("started job notification worker")
}

// Wait blocks until the dispatch worker has exited.
func (n *jobNotifier[J]) Wait() {
	n.wg.Wait()
}

// Notify queues w for delivery. Before Start, or when the queue is full,
// it delivers synchronously.
func (n *jobNotifier[J]) Notify(w *JobWrapper[J]) {
	if w == nil {
		return
	}
	n.subsMu.Lock()
	started := n.started
	n.subsMu.Unlock()
	if !started {
		n.deliver(w)
		return
	}
	select {
	case n.queue <- w:
	default:
		logger.Warn("notification queue full, falling back to sync broadcast")
		n.deliver(w)
	}
}

func (n *jobNotifier[J]) deliver(w *JobWrapper[J]) {
	n.subsMu.Lock()
	blocked := 0
	subscribers := len(n.subs)
	for ch := range n.subs {
		select {
		case ch <- w:
		default:
			blocked++
		}
	}
	n.notified++
	n.dropped += uint64(blocked)
	n.subsMu.Unlock()

	if blocked > 0 {
		logger.Warn("job broadcast blocked; dropping update", "subscribers", subscribers, "blocked", blocked)
	}
}

func (n *jobNotifier[J]) worker(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-n.queue:
			n.deliver(w)
		}
	}
}

// Stats returns the number of broadcasts and of per-subscriber drops.
func (n *jobNotifier[J]) Stats() (notified, dropped uint64) {
	n.subsMu.Lock()
	defer n.subsMu.Unlock()
	return n.notified, n.dropped
}
