package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"d7kernel/errors"
	"d7kernel/ipc"
	"d7kernel/kernel"
	"d7kernel/process"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session against one in-process kernel instance",
	Long: `shell boots a kernel and drops into a line-oriented REPL where each
command maps directly to a syscall against a chosen "current" process,
standing in for the register-frame syscalls user space would otherwise
make (spec §4.2/§4.3). Type "help" for the command list.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellSession holds the state a single shell invocation threads through
// its command loop: the kernel instance and which process subsequent
// commands act as.
type shellSession struct {
	k       *kernel.Kernel
	current process.ID
	out     io.Writer
}

func runShell(cmd *cobra.Command, args []string) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("shell requires an interactive terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(stdIO{}, "d7> ")

	k := kernel.New(kernelConfig())
	root := k.Boot(process.Image{Name: "root"}, process.PrivDMA|process.PrivIRQ|process.PrivSpawn|process.PrivKernelLog)
	sess := &shellSession{k: k, current: root.PID, out: t}

	fmt.Fprintf(t, "booted root process pid %d, current=%d\r\n", root.PID, sess.current)

	for {
		line, err := t.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" {
			return nil
		}
		if err := sess.dispatch(fields); err != nil {
			fmt.Fprintf(t, "error: %v\r\n", err)
		}
	}
}

// stdIO adapts the process's stdin/stdout into the io.ReadWriter
// term.NewTerminal requires.
type stdIO struct{}

func (stdIO) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdIO) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (s *shellSession) dispatch(fields []string) error {
	switch fields[0] {
	case "help":
		s.printHelp()
	case "use":
		return s.cmdUse(fields[1:])
	case "boot":
		return s.cmdBoot(fields[1:])
	case "exec":
		return s.cmdExec(fields[1:])
	case "ps":
		return s.cmdPS()
	case "pub":
		return s.cmdPub(fields[1:])
	case "sub":
		return s.cmdSub(fields[1:])
	case "recv":
		return s.cmdRecv(fields[1:])
	case "ack":
		return s.cmdAck(fields[1:])
	case "select":
		return s.cmdSelect(fields[1:])
	case "kill":
		return s.cmdKill(fields[1:])
	case "exit":
		return s.cmdExit(fields[1:])
	case "log":
		return s.cmdLog()
	case "irqset":
		return s.cmdIRQSet(fields[1:])
	case "irq":
		return s.cmdIRQ(fields[1:])
	default:
		return fmt.Errorf("unknown command %q (try \"help\")", fields[0])
	}
	return nil
}

func (s *shellSession) printHelp() {
	fmt.Fprint(s.out, "commands:\r\n"+
		"  use <pid>                              switch the current process\r\n"+
		"  boot [priv,...]                        spawn a new parentless process\r\n"+
		"  exec <elf-path> [priv,...]              exec an ELF as a child of current\r\n"+
		"  ps                                      list every process\r\n"+
		"  pub <topic> <data>                      publish to every matching subscription\r\n"+
		"  sub <filter> [exact] [reliable]         subscribe current to filter\r\n"+
		"  recv <sub-id>                           blocking receive on current\r\n"+
		"  ack <sub-id> <ack-id> <true|false>      acknowledge a reliable delivery\r\n"+
		"  select <id,id,...> [nonblocking]        wait on several subscriptions\r\n"+
		"  kill <pid>                              terminate pid with a fatal fault\r\n"+
		"  exit [code]                              terminate current normally\r\n"+
		"  log                                      drain the kernel log as current\r\n"+
		"  irqset <n> <stub>                       install current as irq n's handler\r\n"+
		"  irq <n> <data>                           fire a synthetic IRQ\r\n"+
		"  quit                                     leave the shell\r\n")
}

func parsePrivileges(names []string) (process.Privilege, error) {
	var p process.Privilege
	for _, field := range names {
		for _, name := range strings.Split(field, ",") {
			priv, ok := process.ParsePrivilege(name)
			if !ok {
				return 0, fmt.Errorf("unknown privilege %q", name)
			}
			p |= priv
		}
	}
	return p, nil
}

func (s *shellSession) cmdUse(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: use <pid>")
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}
	if _, ok := s.k.Table.Get(process.ID(n)); !ok {
		return fmt.Errorf("no such process %d", n)
	}
	s.current = process.ID(n)
	return nil
}

func (s *shellSession) cmdBoot(args []string) error {
	priv, err := parsePrivileges(args)
	if err != nil {
		return err
	}
	p := s.k.Boot(process.Image{}, priv)
	fmt.Fprintf(s.out, "spawned pid %d\r\n", p.PID)
	return nil
}

func (s *shellSession) cmdExec(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: exec <elf-path> [priv,...]")
	}
	elf, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	priv, err := parsePrivileges(args[1:])
	if err != nil {
		return err
	}
	pid, err := s.k.Exec(s.current, elf, nil, nil, priv, process.Limits{})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "spawned pid %d\r\n", pid)
	return nil
}

func (s *shellSession) cmdPS() error {
	for _, p := range s.k.Processes() {
		marker := " "
		if p.PID == s.current {
			marker = "*"
		}
		parent := "-"
		if p.HasParent {
			parent = fmt.Sprintf("%d", p.ParentID)
		}
		fmt.Fprintf(s.out, "%s %d\tparent=%s\tstatus=%s\tpriv=%s\r\n", marker, p.PID, parent, p.Status.Kind, p.Privilege)
	}
	return nil
}

func (s *shellSession) cmdPub(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pub <topic> <data>")
	}
	return s.k.IPCPublish(args[0], []byte(strings.Join(args[1:], " ")))
}

func (s *shellSession) cmdSub(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sub <filter> [exact] [reliable]")
	}
	filter := ipc.Filter{Str: args[0], Exact: contains(args[1:], "exact")}
	reliable := contains(args[1:], "reliable")
	subID, err := s.k.IPCSubscribe(s.current, filter, reliable)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "sub id %d\r\n", subID)
	return nil
}

func (s *shellSession) cmdRecv(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: recv <sub-id>")
	}
	subID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}
	buf := make([]byte, 4096)
	n, err := s.k.IPCReceive(s.current, subID, buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d bytes: %q\r\n", n, buf[:n])
	return nil
}

func (s *shellSession) cmdAck(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: ack <sub-id> <ack-id> <true|false>")
	}
	subID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}
	ackID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return err
	}
	positive, err := strconv.ParseBool(args[2])
	if err != nil {
		return err
	}
	return s.k.IPCAcknowledge(s.current, subID, ackID, positive)
}

func (s *shellSession) cmdSelect(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: select <id,id,...> [nonblocking]")
	}
	parts := strings.Split(args[0], ",")
	ids := make([]uint64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	nonblocking := contains(args[1:], "nonblocking")
	id, err := s.k.IPCSelect(s.current, ids, nonblocking)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "ready sub id %d\r\n", id)
	return nil
}

func (s *shellSession) cmdKill(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: kill <pid>")
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}
	return s.k.Kill(process.ID(n), process.Failed(errors.UnhandledInterrupt))
}

func (s *shellSession) cmdExit(args []string) error {
	var code uint64
	if len(args) == 1 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		code = n
	}
	return s.k.Exit(s.current, code)
}

func (s *shellSession) cmdLog() error {
	buf := make([]byte, 4096)
	n, err := s.k.KernelLogRead(s.current, buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s", buf[:n])
	return nil
}

func (s *shellSession) cmdIRQSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: irqset <n> <stub>")
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}
	return s.k.IRQSetHandler(s.current, n, []byte(strings.Join(args[1:], " ")))
}

func (s *shellSession) cmdIRQ(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: irq <n> <data>")
	}
	n, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return err
	}
	return s.k.FireIRQ(n, []byte(strings.Join(args[1:], " ")))
}

func contains(fields []string, target string) bool {
	for _, f := range fields {
		if f == target {
			return true
		}
	}
	return false
}
