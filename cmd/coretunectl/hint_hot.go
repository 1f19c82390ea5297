package main

import (
	"github.com/spf13/cobra"
)

func newHintHotCmd() *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "hint-hot <addr> <size>",
		Short: "Mark a physical region hot, boosting its importance and access count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHintHot(args, priority)
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "Floor to raise importance to (0-100), on top of the fixed boost")
	return cmd
}

func runHintHot(args []string, priority int) error {
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
	if err := k.api.HintHot(addr, size, priority); err != nil {
		return err
	}
	if err := k.save(); err != nil {
		return err
	}

	snap, _ := k.trk.Snapshot(addr)
	if jsonOut {
		return printJSON(snap)
	}
	printInfo("marked 0x%x (size %d) hot: importance=%d access_count=%d\n", addr, size, snap.Importance, snap.AccessCount)
	return nil
}
