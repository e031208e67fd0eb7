package ipc

import (
	"context"
	"sync"

	"d7kernel/errors"
)

// Bus is the kernel's IPC core: the subscription registry, every
// subscription's inbox, and the outstanding reliable-delivery ack table
// (spec §4.3). All blocking operations take a context.Context so the
// caller (kernel) can cancel them when the blocked process is killed,
// the idiomatic-Go stand-in for "process termination cancels all its
// blocking operations" (spec §5).
//
// Bus has no knowledge of process.Table or sched.Scheduler: it is woken
// and observed purely through its own mutex/condition variable, so ipc
// never imports process or sched and neither of them needs to import ipc.
type Bus struct {
	mu   sync.Mutex
	cond *sync.Cond

	subs      map[uint64]*subscription
	nextSubID uint64
	nextAckID uint64

	// ackWaiters holds the sender's continuation for each outstanding
	// reliable delivery: the channel ipc_deliver is parked on, fed by
	// Acknowledge or by releaseSub when the receiver goes away.
	ackWaiters map[uint64]chan error
}

// NewBus creates an empty IPC bus.
func NewBus() *Bus {
	b := &Bus{
		subs:       make(map[uint64]*subscription),
		ackWaiters: make(map[uint64]chan error),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Subscribe creates a new subscription owned by owner. Reliable
// subscriptions are checked against every existing reliable subscription
// for filter overlap (spec §4.3 exclusivity).
func (b *Bus) Subscribe(owner uint64, filter Filter, reliable bool) (uint64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if reliable {
		for _, s := range b.subs {
			if s.reliable && s.filter.Overlaps(filter) {
				return 0, errors.ErrFilterExclusion
			}
		}
	}

	b.nextSubID++
	id := b.nextSubID
	b.subs[id] = &subscription{id: id, owner: owner, filter: filter, reliable: reliable}
	return id, nil
}

// Unsubscribe drops a subscription owned by owner, nacking any
// outstanding reliable delivery addressed to it.
func (b *Bus) Unsubscribe(owner, subID uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subID]
	if !ok || sub.owner != owner {
		return errors.ErrUnsubscribed
	}
	b.releaseSub(sub)
	delete(b.subs, subID)
	b.cond.Broadcast()
	return nil
}

// releaseSub nacks any outstanding reliable delivery to sub. Called under
// b.mu, both from Unsubscribe and from whatever caller tears down a dead
// process's subscriptions.
func (b *Bus) releaseSub(sub *subscription) {
	if sub.pendingAckID == nil {
		return
	}
	if waiter, ok := b.ackWaiters[*sub.pendingAckID]; ok {
		waiter <- errors.ErrDeliveryTargetNack
		delete(b.ackWaiters, *sub.pendingAckID)
	}
	sub.pendingAckID = nil
}

// Publish fans a message out to every matching subscription's inbox,
// dropping it silently for any subscription whose inbox is already full
// (spec §4.3: "Over-capacity drops silently"). Never fails except for an
// invalid topic.
func (b *Bus) Publish(topic string, data []byte) error {
	if topic == "" {
		return errors.ErrInvalidTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if !s.filter.Matches(topic) {
			continue
		}
		if len(s.inbox) < inboxCapacity {
			s.inbox = append(s.inbox, Message{Topic: topic, Data: data})
		}
	}
	b.cond.Broadcast()
	return nil
}

// chooseReliableTarget applies the spec §4.3 tie-break: exact beats
// prefix, then longest prefix, then lowest sub_id. Must be called under
// b.mu.
func (b *Bus) chooseReliableTarget(topic string) *subscription {
	var best *subscription
	for _, s := range b.subs {
		if !s.reliable || !s.filter.Matches(topic) {
			continue
		}
		if best == nil || higherPriority(s, best) {
			best = s
		}
	}
	return best
}

func higherPriority(a, b *subscription) bool {
	if a.filter.Exact != b.filter.Exact {
		return a.filter.Exact
	}
	if !a.filter.Exact && len(a.filter.Str) != len(b.filter.Str) {
		return len(a.filter.Str) > len(b.filter.Str)
	}
	return a.id < b.id
}

// Deliver performs a reliable, blocking delivery (spec §4.3 ipc_deliver).
// It returns once the receiver acknowledges (nil on positive ack,
// errors.ErrDeliveryTargetNack on negative ack or receiver teardown), or
// once ctx is cancelled.
func (b *Bus) Deliver(ctx context.Context, topic string, data []byte) error {
	if topic == "" {
		return errors.ErrInvalidTopic
	}

	b.mu.Lock()
	target := b.chooseReliableTarget(topic)
	if target == nil {
		b.mu.Unlock()
		return errors.ErrDeliveryNoTarget
	}
	if target.pendingAckID != nil {
		b.mu.Unlock()
		return errors.ErrDeliveryTargetFull
	}

	b.nextAckID++
	ackID := b.nextAckID
	target.inbox = append(target.inbox, Message{Topic: topic, Data: data, AckID: &ackID})
	target.pendingAckID = &ackID

	waitCh := make(chan error, 1)
	b.ackWaiters[ackID] = waitCh
	b.cond.Broadcast()
	b.mu.Unlock()

	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		// The spec leaves sender-side cancellation underspecified beyond
		// "the sender simply dies and the receiver's eventual ack is
		// discarded" (spec §8 Open Questions); the ack table entry is
		// left in place so a late Acknowledge still completes harmlessly.
		return ctx.Err()
	}
}

// DeliverReply enqueues a reliable-routed message without an ack id and
// returns immediately (spec §4.3 ipc_deliver_reply).
func (b *Bus) DeliverReply(topic string, data []byte) error {
	if topic == "" {
		return errors.ErrInvalidTopic
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	target := b.chooseReliableTarget(topic)
	if target == nil {
		return errors.ErrDeliveryNoTarget
	}
	if len(target.inbox) >= inboxCapacity {
		return errors.ErrDeliveryTargetFull
	}
	target.inbox = append(target.inbox, Message{Topic: topic, Data: data})
	b.cond.Broadcast()
	return nil
}

// Receive pops the head message of subID into buf (spec §4.3
// ipc_receive). It blocks until a message is available or ctx is
// cancelled. If buf is too small the message is left in place and an
// Unknown error is returned, matching the spec's "FAILS unknown if
// buffer too small; message stays in queue".
func (b *Bus) Receive(ctx context.Context, owner, subID uint64, buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subID]
	if !ok || sub.owner != owner {
		return 0, errors.ErrUnsubscribed
	}

	if err := b.waitCond(ctx, sub.hasMessage); err != nil {
		return 0, err
	}

	sub, ok = b.subs[subID]
	if !ok {
		return 0, errors.ErrUnsubscribed
	}

	head := sub.inbox[0]
	if len(head.Data) > len(buf) {
		return 0, errors.New("ipc_receive", errors.Unknown).WithDetail("buffer too small")
	}
	sub.pop()
	return copy(buf, head.Data), nil
}

// Acknowledge completes an outstanding reliable delivery (spec §4.3
// ipc_acknowledge). Referring to anything other than the subscription's
// single outstanding ack id fails ipc_re_acknowledge.
func (b *Bus) Acknowledge(owner, subID, ackID uint64, positive bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subID]
	if !ok || sub.owner != owner {
		return errors.ErrUnsubscribed
	}
	if sub.pendingAckID == nil || *sub.pendingAckID != ackID {
		return errors.ErrReAcknowledge
	}

	waiter, ok := b.ackWaiters[ackID]
	delete(b.ackWaiters, ackID)
	sub.pendingAckID = nil

	if ok {
		if positive {
			waiter <- nil
		} else {
			waiter <- errors.ErrDeliveryTargetNack
		}
	}
	b.cond.Broadcast()
	return nil
}

// Select returns the first subscription in subIDs (in list order, not
// enqueue order) whose inbox is non-empty, blocking if necessary unless
// nonblocking is set (spec §4.3 ipc_select).
func (b *Bus) Select(ctx context.Context, owner uint64, subIDs []uint64, nonblocking bool) (uint64, error) {
	if len(subIDs) == 0 {
		return 0, errors.ErrEmptyListArgument
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range subIDs {
		sub, ok := b.subs[id]
		if !ok || sub.owner != owner {
			return 0, errors.ErrUnsubscribed
		}
	}

	firstReady := func() (uint64, bool) {
		for _, id := range subIDs {
			if b.subs[id].hasMessage() {
				return id, true
			}
		}
		return 0, false
	}

	if id, ok := firstReady(); ok {
		return id, nil
	}
	if nonblocking {
		return 0, errors.ErrWouldBlock
	}

	ready := func() bool {
		_, ok := firstReady()
		return ok
	}
	if err := b.waitCond(ctx, ready); err != nil {
		return 0, err
	}
	id, _ := firstReady()
	return id, nil
}

// ReleaseOwner tears down every subscription owned by pid, nacking any
// outstanding reliable deliveries addressed to them. Called by the kernel
// when a process transitions to Zombie (spec §3 invariant).
func (b *Bus) ReleaseOwner(pid uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.subs {
		if s.owner != pid {
			continue
		}
		b.releaseSub(s)
		delete(b.subs, id)
	}
	b.cond.Broadcast()
}

// waitCond blocks until ready() is true or ctx is cancelled. Must be
// called with b.mu held; it releases the lock while parked (via
// sync.Cond.Wait) and reacquires it before returning, the standard Go
// monitor pattern for "block inside a kernel entry until some condition
// the rest of the bus can set becomes true".
func (b *Bus) waitCond(ctx context.Context, ready func() bool) error {
	if ready() {
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-stop:
		}
	}()

	for !ready() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.cond.Wait()
	}
	return nil
}
