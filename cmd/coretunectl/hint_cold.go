package main

import (
	"github.com/spf13/cobra"
)

func newHintColdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hint-cold <addr> <size>",
		Short: "Mark a physical region cold, backdating its last access time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHintCold(args)
		},
	}
}

func runHintCold(args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	size, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	k, err := loadKernel()
	if err != nil {
		return err
	}
	if _, ok := k.trk.Snapshot(addr); !ok {
		if err := k.trk.Monitor(addr, size, 0); err != nil {
			return err
		}
	}
	if err := k.api.HintCold(addr, size); err != nil {
		return err
	}
	if err := k.save(); err != nil {
		return err
	}

	snap, _ := k.trk.Snapshot(addr)
	if jsonOut {
		return printJSON(snap)
	}
	printInfo("marked 0x%x (size %d) cold: last_access_ns=%d\n", addr, size, snap.LastAccessNs)
	return nil
}
