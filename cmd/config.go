package cmd

import "d7kernel/kernel"

// kernelConfig builds a kernel.Config from the root command's persistent
// flags, shared by every subcommand that boots its own kernel instance.
func kernelConfig() kernel.Config {
	cfg := kernel.DefaultConfig()
	cfg.CalibrationInterval = CalibrationInterval()
	return cfg
}
