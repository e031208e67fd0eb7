// d7 is a host-side harness for the d7 microkernel: an in-process
// implementation of its IPC bus, process table, syscall dispatch, and
// TSC-deadline time base, driven from the command line in place of the
// bootloader and CPU a real boot would provide.
//
// Commands:
//
//	run     - boot the kernel and exec a single ELF as its init process
//	shell   - interactive session issuing syscalls against one kernel
//	version - print version information
package main

import (
	"fmt"
	"os"

	"d7kernel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
