package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/tier"
)

func newForceMigrateCmd() *cobra.Command {
	var virtArg string

	cmd := &cobra.Command{
		Use:   "force-migrate <addr> <size> <tier>",
		Short: "Migrate a region to a tier immediately, bypassing policy scoring",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForceMigrate(args, virtArg)
		},
	}
	cmd.Flags().StringVar(&virtArg, "virt", "0", "Virtual address to remap (0 skips the remap step)")
	return cmd
}

func parseTier(s string) (tier.Tier, error) {
	for _, t := range tier.Order {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tier %q (want one of FastDRAM, HBM, StandardDRAM, PMEM, ExtendedCXL, Remote, Storage)", s)
}

func runForceMigrate(args []string, virtArg string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	size, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	dst, err := parseTier(args[2])
	if err != nil {
		return err
	}
	virt, err := parseAddr(virtArg)
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
	ev, err := k.api.ForceMigrate(virt, addr, size, dst)
	if err != nil {
		printError("migration failed: %v\n", err)
		return err
	}
	if err := k.save(); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(ev)
	}
	printInfo("migrated 0x%x -> 0x%x (%d bytes) to %s\n", ev.Src, ev.Dst, ev.Size, ev.DstTier)
	return nil
}
