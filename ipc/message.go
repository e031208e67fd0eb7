package ipc

// Message is a single enqueued item in a subscription's inbox (spec §3).
// AckID is non-nil iff this message is a reliable delivery awaiting
// acknowledgement.
type Message struct {
	Topic string
	Data  []byte
	AckID *uint64
}

// Reliable reports whether m carries an outstanding ack id.
func (m Message) Reliable() bool {
	return m.AckID != nil
}
