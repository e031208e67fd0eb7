package process

// InfoPage is the read-only per-CPU page spec §6 describes as mapped into
// every process: the calibrated TSC frequency and the offset applied to
// translate a raw architectural timestamp read into kernel tick space.
// Single-CPU core model, so every process observes the same InfoPage for
// CPU 0; TSCOffset is always zero until the kernel tracks more than one
// calibrated clock domain.
type InfoPage struct {
	TSCFreqHz uint64
	TSCOffset uint64
}
