package process

const pageSize = 0x1000

// EncodeArgv serializes argv and envp into the flat, null-terminated
// layout an argument page carries: each argv entry terminated by a NUL,
// a lone NUL ending argv, then each envp entry terminated by a NUL and a
// lone NUL ending envp — the shape libd7's env.rs hands a new process.
func EncodeArgv(args, env []string) []byte {
	var buf []byte
	for _, s := range args {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0)
	for _, s := range env {
		buf = append(buf, s...)
		buf = append(buf, 0)
	}
	buf = append(buf, 0)
	return buf
}

// ArgumentRegion places a read-only region sized to hold length bytes of
// encoded argv/envp directly after the highest virtual address any
// region in existing occupies, so exec's argument page never overlaps a
// PT_LOAD segment regardless of where the ELF's own segments happen to
// be linked.
func ArgumentRegion(existing []Region, length uint64) Region {
	var base uint64
	for _, r := range existing {
		if end := alignUp(r.End(), pageSize); end > base {
			base = end
		}
	}
	return Region{
		VirtStart: base,
		Length:    alignUp(length, pageSize),
		Prot:      ProtRead,
		Kind:      RegionArgs,
	}
}
