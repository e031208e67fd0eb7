package process

import "fmt"

// EventKind identifies a process lifecycle event, the process-table
// analogue of the teacher's OCI hook points (createRuntime, poststart,
// poststop, …) collapsed to the two transitions the spec actually
// publishes notifications for (spec §7: "the parent, if still alive, is
// notified").
type EventKind string

const (
	EventSpawned EventKind = "spawned"
	EventExited  EventKind = "exited"
)

// Event is a single lifecycle notification, published on a well-known
// topic so any subscriber (not just the parent) can observe process churn.
type Event struct {
	Kind   EventKind
	PID    ID
	Parent ID
	Result Result // valid when Kind == EventExited
}

// Topic returns the hierarchical topic the event is published on, e.g.
// "proc/42/exited".
func (e Event) Topic() string {
	return fmt.Sprintf("proc/%d/%s", e.PID, e.Kind)
}

// Notifier publishes lifecycle events. The process table depends only on
// this narrow interface, not on the ipc package directly, so ipc and
// process never import each other; Kernel wires a *ipc.Bus in as the
// concrete Notifier at construction time.
type Notifier interface {
	Publish(topic string, data []byte) error
}

// notifyLifecycle publishes an event on its lifecycle topic and returns
// the publish error, if any; the table's callers ignore it, so a failed
// publish never fails the transition, mirroring the teacher's best-effort
// hook execution for non-fatal hook stages.
func notifyLifecycle(n Notifier, ev Event) error {
	if n == nil {
		return nil
	}
	return n.Publish(ev.Topic(), []byte(ev.Result.String()))
}
