package process

// Image describes how to build a new process: the ELF binary to map, the
// arguments/environment it starts with, and the privilege and resource
// envelope it runs under. It plays the role the teacher's OCI spec.Spec
// played for containers, trimmed to what exec() actually needs for a
// kernel process (no rootfs, namespaces, or cgroup paths: those concerns
// are now Region, Privilege, and Limits).
type Image struct {
	// Name identifies the image for logging and ps-style listings.
	Name string

	// ELF is the raw ELF64 binary contents to map via debug/elf.
	ELF []byte

	// Args and Env are delivered to the process's entry point the way
	// libd7's process_spawn passes argv/envp.
	Args []string
	Env  []string

	// Requested is the privilege bitmask asked for the new process;
	// Table.Create intersects it with the spawning process's privilege, so
	// exec() never grants more than the spawner already holds.
	Requested Privilege

	// Limits bounds the new process's memory and DMA footprint.
	Limits Limits
}
