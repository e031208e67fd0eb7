package kernel

import (
	"d7kernel/ipc"
	"d7kernel/process"
)

// IPCSubscribe creates a subscription owned by caller (spec §4.3
// ipc_subscribe) and records it against the process table for
// release-on-exit bookkeeping.
func (k *Kernel) IPCSubscribe(caller process.ID, filter ipc.Filter, reliable bool) (uint64, error) {
	subID, err := k.Bus.Subscribe(uint64(caller), filter, reliable)
	if err != nil {
		return 0, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.Table.MustGet(caller)
	if err != nil {
		return 0, err
	}
	p.OwnedSubs = append(p.OwnedSubs, subID)
	return subID, nil
}

// IPCUnsubscribe drops subID (spec §4.3 ipc_unsubscribe).
func (k *Kernel) IPCUnsubscribe(caller process.ID, subID uint64) error {
	if err := k.Bus.Unsubscribe(uint64(caller), subID); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	p, err := k.Table.MustGet(caller)
	if err != nil {
		return nil // already gone; nothing to untrack
	}
	for i, s := range p.OwnedSubs {
		if s == subID {
			p.OwnedSubs = append(p.OwnedSubs[:i], p.OwnedSubs[i+1:]...)
			break
		}
	}
	return nil
}

// IPCPublish fans data out to every matching subscription (spec §4.3
// ipc_publish). Never fails except for an invalid topic.
func (k *Kernel) IPCPublish(topic string, data []byte) error {
	return k.Bus.Publish(topic, data)
}

// IPCDeliver performs a blocking reliable delivery (spec §4.3
// ipc_deliver). The caller is marked Ready again once the bus unblocks it
// (by ack, nack, or context cancellation on exit).
func (k *Kernel) IPCDeliver(caller process.ID, topic string, data []byte) error {
	k.markBlockedOnIPC(caller, nil)
	defer k.markReady(caller)

	ctx := k.ctxFor(caller)
	return k.Bus.Deliver(ctx, topic, data)
}

// IPCDeliverReply enqueues a reliable reply without awaiting an ack (spec
// §4.3 ipc_deliver_reply).
func (k *Kernel) IPCDeliverReply(topic string, data []byte) error {
	return k.Bus.DeliverReply(topic, data)
}

// IPCReceive pops the head message of subID into buf (spec §4.3
// ipc_receive), marking caller BlockedOnIPC for the duration of a wait.
func (k *Kernel) IPCReceive(caller process.ID, subID uint64, buf []byte) (int, error) {
	k.markBlockedOnIPC(caller, []uint64{subID})
	defer k.markReady(caller)

	ctx := k.ctxFor(caller)
	n, err := k.Bus.Receive(ctx, uint64(caller), subID, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IPCAcknowledge completes an outstanding reliable delivery (spec §4.3
// ipc_acknowledge).
func (k *Kernel) IPCAcknowledge(caller process.ID, subID, ackID uint64, positive bool) error {
	return k.Bus.Acknowledge(uint64(caller), subID, ackID, positive)
}

// IPCSelect returns the first ready subscription in subIDs, in list order
// (spec §4.3 ipc_select).
func (k *Kernel) IPCSelect(caller process.ID, subIDs []uint64, nonblocking bool) (uint64, error) {
	if !nonblocking {
		k.markBlockedOnIPC(caller, subIDs)
		defer k.markReady(caller)
	}

	ctx := k.ctxFor(caller)
	id, err := k.Bus.Select(ctx, uint64(caller), subIDs, nonblocking)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// markBlockedOnIPC updates both the process's visible Status and the
// scheduler's wake index so ps-style introspection and wake bookkeeping
// stay consistent with the real blocking happening inside ipc.Bus.
func (k *Kernel) markBlockedOnIPC(caller process.ID, subIDs []uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.Table.Get(caller)
	if !ok {
		return
	}
	p.Status = process.Status{Kind: process.BlockedOnIPC, WaitSet: subIDs}
	k.Sched.BlockOnIPC(uint64(caller), subIDs, false, 0)
}

// markReady restores caller's visible Status to Ready once an IPC wait
// completes, unless it has since been killed.
func (k *Kernel) markReady(caller process.ID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	p, ok := k.Table.Get(caller)
	if !ok || !p.IsAlive() {
		return
	}
	p.Status = process.Status{Kind: process.Ready}
	k.Sched.Enqueue(uint64(caller))
}
