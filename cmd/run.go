package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"d7kernel/kernel"
	"d7kernel/process"
)

var runCmd = &cobra.Command{
	Use:   "run <elf-path> [args...]",
	Short: "Boot the kernel and exec a single ELF as its init process",
	Long: `run boots a fresh kernel, loads the given ELF64 binary as the init
process with full privilege, and prints the resulting process table. There
is no CPU to actually execute the loaded image; this is a smoke test for
exec()'s ELF-loading and privilege plumbing, not a way to run a program.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	elf, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	k := kernel.New(kernelConfig())
	root := k.Boot(process.Image{Name: "root"}, process.PrivDMA|process.PrivIRQ|process.PrivSpawn|process.PrivKernelLog)

	fullPriv := root.Privilege
	pid, err := k.Exec(root.PID, elf, args[1:], nil, fullPriv, process.Limits{})
	if err != nil {
		return fmt.Errorf("exec %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "spawned pid %d from %s\n\n", pid, args[0])
	return printProcessTable(cmd, k)
}

func printProcessTable(cmd *cobra.Command, k *kernel.Kernel) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tPARENT\tSTATUS\tPRIVILEGE\tREGIONS")
	for _, p := range k.Processes() {
		parent := "-"
		if p.HasParent {
			parent = fmt.Sprintf("%d", p.ParentID)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", p.PID, parent, p.Status.Kind, p.Privilege, len(p.Regions))
	}
	return w.Flush()
}
