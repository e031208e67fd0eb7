package process

import (
	"bytes"
	"debug/elf"
	"fmt"

	"d7kernel/errors"
)

// No third-party ELF64 parser appears anywhere in the retrieval pack, so
// this uses the standard library's debug/elf; see DESIGN.md for the
// stdlib-usage justification.

// LoadELF parses raw ELF64 bytes and returns the entry point plus the set
// of memory regions its PT_LOAD program headers describe, the kernel-side
// analogue of the teacher's mount-list walk in rootfs.go: each loadable
// segment becomes one mapped region, built up in program-header order and
// rejected whole on the first invalid entry.
func LoadELF(data []byte) (entry uint64, regions []Region, err error) {
	f, ferr := elf.NewFile(bytes.NewReader(data))
	if ferr != nil {
		return 0, nil, errors.Wrap(ferr, "process_spawn", errors.InvalidPointer)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return 0, nil, errors.New("process_spawn", errors.InvalidPointer).WithDetail("only ELF64 binaries are supported")
	}
	if f.Machine != elf.EM_X86_64 {
		return 0, nil, errors.New("process_spawn", errors.InvalidPointer).WithDetail(fmt.Sprintf("unsupported machine %s, want x86-64", f.Machine))
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Memsz == 0 {
			continue
		}

		prot := Protection(0)
		if prog.Flags&elf.PF_R != 0 {
			prot |= ProtRead
		}
		if prog.Flags&elf.PF_W != 0 {
			prot |= ProtWrite
		}
		if prog.Flags&elf.PF_X != 0 {
			prot |= ProtExec
		}

		regions = append(regions, Region{
			VirtStart: prog.Vaddr,
			Length:    alignUp(prog.Memsz, prog.Align),
			Prot:      prot,
			Kind:      RegionAnonymous,
		})
	}

	if len(regions) == 0 {
		return 0, nil, errors.New("process_spawn", errors.InvalidPointer).WithDetail("ELF has no PT_LOAD segments")
	}

	return f.Entry, regions, nil
}

// alignUp rounds size up to the next multiple of align (treating 0 or 1
// as "no alignment requested").
func alignUp(size, align uint64) uint64 {
	if align < 2 {
		return size
	}
	rem := size % align
	if rem == 0 {
		return size
	}
	return size + (align - rem)
}
