package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menchan-Rub/AetherOS-sub000/pkg/migration"
)

func newSetProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-profile <Performance|Balanced|PowerSaving>",
		Short: "Switch the active Migration Policy profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetProfile(args[0])
		},
	}
}

func parseProfile(s string) (migration.Profile, error) {
	switch migration.Profile(s) {
	case migration.Performance, migration.Balanced, migration.PowerSaving:
		return migration.Profile(s), nil
	default:
		return "", fmt.Errorf("unknown profile %q (want one of Performance, Balanced, PowerSaving)", s)
	}
}

func runSetProfile(arg string) error {
	profile, err := parseProfile(arg)
	if err != nil {
		return err
	}

	k, err := loadKernel()
	if err != nil {
		return err
	}
	k.api.SetProfile(profile)
	if err := k.save(); err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]string{"profile": string(profile)})
	}
	printInfo("active profile is now %s\n", profile)
	return nil
}
