package main

import (
	"github.com/spf13/cobra"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/tracker"
)

type statsOutput struct {
	Profile string                `json:"profile"`
	Pages   []tracker.TrackedPage `json:"pages"`
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the active profile and every tracked region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
}

func runStats() error {
	k, err := loadKernel()
	if err != nil {
		return err
	}

	out := statsOutput{Profile: string(k.api.Profile()), Pages: k.trk.All()}
	if jsonOut {
		return printJSON(out)
	}

	printInfo("profile: %s\n", out.Profile)
	printInfo("tracked regions: %d\n", len(out.Pages))
	for _, p := range out.Pages {
		printInfo("  0x%-10x size=%-8d tier=%-12s importance=%-4d access_count=%-8d write_count=%-8d pattern=%s\n",
			p.PhysAddr, p.Size, p.CurrentTier, p.Importance, p.AccessCount, p.WriteCount, p.Pattern)
	}
	return nil
}
