// Package stream provides the per-task step publisher: a multicast channel
// that delivers every published step to each subscriber in order, buffering
// slow consumers without ever blocking the producer.
package stream

import (
	"sync"

	"github.com/coderpwh1024/multi-agent-system/internal/agent/domain"
)

// Publisher multicasts Steps for a single task. One Publisher is created per
// submission; the owning execution loop is the only producer, while any
// number of subscribers may attach and detach concurrently.
type Publisher struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	err    error
}

// Subscription is one consumer's ordered view of the stream, starting from
// the moment Subscribe was called. Steps queue without bound between producer
// and consumer, so a slow reader never stalls the loop.
type Subscription struct {
	pub *Publisher

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []domain.Step
	done   bool
	err    error
	out    chan domain.Step
	stop   chan struct{}
	closed bool
}

// NewPublisher creates an open publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[*Subscription]struct{})}
}

var _ domain.StepListener = (*Publisher)(nil)

// OnStep publishes step to every current subscriber. Steps published after
// Complete or Fail are dropped.
func (p *Publisher) OnStep(step domain.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for sub := range p.subs {
		sub.push(step)
	}
}

// Complete signals end-of-stream. It is idempotent; only the first of
// Complete/Fail takes effect.
func (p *Publisher) Complete() {
	p.close(nil)
}

// Fail signals an abnormal end-of-stream. Ordinary task failures are not
// delivered here; they arrive as a terminal Step followed by Complete.
func (p *Publisher) Fail(err error) {
	p.close(err)
}

func (p *Publisher) close(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.err = err
	for sub := range p.subs {
		sub.finish(err)
	}
}

// Closed reports whether completion or error has been signaled.
func (p *Publisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Subscribe attaches a new consumer. The subscription receives every step
// published from this point onward; if the stream already ended it is
// delivered the completion signal immediately.
func (p *Publisher) Subscribe() *Subscription {
	sub := &Subscription{
		pub:  p,
		out:  make(chan domain.Step),
		stop: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	p.mu.Lock()
	if p.closed {
		sub.done = true
		sub.err = p.err
	} else {
		p.subs[sub] = struct{}{}
	}
	p.mu.Unlock()

	go sub.pump()
	return sub
}

// Steps returns the channel steps are delivered on. The channel closes after
// the publisher signals completion (or error) and all buffered steps have
// been consumed, or after Cancel.
func (s *Subscription) Steps() <-chan domain.Step {
	return s.out
}

// Err returns the error signal, if any, once Steps has closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel detaches the subscription. Buffered but unread steps are discarded.
func (s *Subscription) Cancel() {
	s.pub.mu.Lock()
	delete(s.pub.subs, s)
	s.pub.mu.Unlock()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		s.done = true
		close(s.stop)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) push(step domain.Step) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, step)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.err = err
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// pump moves steps from the unbounded queue to the delivery channel. The
// queue absorbs the gap between producer and consumer speed, bounded only by
// memory, so OnStep never waits on a reader.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.done && !s.closed {
			s.cond.Wait()
		}
		if s.closed || (s.done && len(s.queue) == 0) {
			s.mu.Unlock()
			close(s.out)
			return
		}
		step := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- step:
		case <-s.stop:
			close(s.out)
			return
		}
	}
}
