// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"github.com/dvpro/voxgate/internal/config"
	"github.com/dvpro/voxgate/internal/database"
	"github.com/dvpro/voxgate/internal/models"
	"github.com/dvpro/voxgate/internal/services"
)

// openStores builds the license store and activity tracker against the
// configured database without starting the server.
func openStores(configDir, dataDir string) (*models.LicenseStore, *services.ActivityTracker, func(), error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	closer := func() { db.Close() }
	return models.NewLicenseStore(db.Conn()), services.NewActivityTracker(db.Conn()), closer, nil
}

func RunLicenseCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "license",
		Short: "Manage license keys",
	}

	command.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"data directory path (defaults to next to config file)")

	command.AddCommand(runLicenseGenerateCommand(&configDir, &dataDir))
	command.AddCommand(runLicenseListCommand(&configDir, &dataDir))
	command.AddCommand(runLicenseShowCommand(&configDir, &dataDir))
	command.AddCommand(runLicenseExtendCommand(&configDir, &dataDir))
	command.AddCommand(runLicenseSetStatusCommand(&configDir, &dataDir))
	command.AddCommand(runLicenseResetMachineCommand(&configDir, &dataDir))
	command.AddCommand(runLicenseClearFlagCommand(&configDir, &dataDir))

	return command
}

func runLicenseGenerateCommand(configDir, dataDir *string) *cobra.Command {
	var (
		tier  string
		days  int
		count int
		notes string
	)

	command := &cobra.Command{
		Use:   "generate",
		Short: "Generate new license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !models.Tier(tier).Valid() {
				return fmt.Errorf("invalid tier %q (expected basic, pro or vip)", tier)
			}
			if days <= 0 {
				return fmt.Errorf("days must be positive")
			}
			if count <= 0 || count > 100 {
				return fmt.Errorf("count must be between 1 and 100")
			}

			licenses, _, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			generated, err := licenses.Generate(context.Background(), models.Tier(tier), days, count, notes)
			if err != nil {
				return fmt.Errorf("failed to generate licenses: %w", err)
			}

			for _, lic := range generated {
				cmd.Printf("%s\t%s\texpires %s\n", lic.Key, lic.Tier, lic.ExpiryDate.Format("2006-01-02"))
			}
			return nil
		},
	}

	command.Flags().StringVar(&tier, "tier", "basic", "license tier: basic, pro or vip")
	command.Flags().IntVar(&days, "days", 365, "validity in days from today")
	command.Flags().IntVar(&count, "count", 1, "number of keys to generate")
	command.Flags().StringVar(&notes, "notes", "", "free-form note stored with the licenses")

	return command
}

func runLicenseListCommand(configDir, dataDir *string) *cobra.Command {
	var (
		status     string
		filter     string
		suspicious bool
	)

	command := &cobra.Command{
		Use:   "list",
		Short: "List licenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !models.ValidLicenseStatus(status) {
				return fmt.Errorf("invalid status %q", status)
			}

			licenses, tracker, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			if suspicious {
				return printSuspicious(cmd, tracker)
			}

			all, err := licenses.List(context.Background(), status)
			if err != nil {
				return fmt.Errorf("failed to list licenses: %w", err)
			}

			now := time.Now()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTIER\tSTATUS\tEXPIRES\tDAYS LEFT\tUSED\tMACHINE\tNOTES")
			for _, lic := range all {
				if filter != "" && !matchLicense(lic, filter) {
					continue
				}
				machine := "-"
				if lic.MachineID != nil {
					machine = *lic.MachineID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					lic.Key, lic.Tier, lic.Status,
					lic.ExpiryDate.Format("2006-01-02"), lic.DaysLeft(now),
					lic.UsageCount, machine, lic.Notes)
			}
			return w.Flush()
		},
	}

	command.Flags().StringVar(&status, "status", "", "filter by status: active, inactive or suspended")
	command.Flags().StringVar(&filter, "filter", "", "fuzzy filter on key, machine ID or notes")
	command.Flags().BoolVar(&suspicious, "suspicious", false, "list only licenses flagged for unusual activity")

	return command
}

// matchLicense applies the fuzzy CLI filter across the searchable
// license fields.
func matchLicense(lic *models.License, filter string) bool {
	haystack := []string{lic.Key, lic.Notes}
	if lic.MachineID != nil {
		haystack = append(haystack, *lic.MachineID)
	}
	for _, s := range haystack {
		if fuzzy.MatchFold(filter, s) {
			return true
		}
	}
	return false
}

func printSuspicious(cmd *cobra.Command, tracker *services.ActivityTracker) error {
	flagged, err := tracker.ListSuspicious(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list suspicious licenses: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tLAST IP\tIP CHANGES\tDAILY CALLS")
	for _, s := range flagged {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.Key, s.LastIP, s.IPChanges, s.DailyUsage)
	}
	return w.Flush()
}

func runLicenseShowCommand(configDir, dataDir *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "show <key>",
		Short: "Show a single license in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			licenses, _, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			lic, err := licenses.Get(context.Background(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			info, err := licenses.UsageInfo(context.Background(), lic.Key)
			if err != nil {
				return err
			}

			cmd.Printf("Key:         %s\n", lic.Key)
			cmd.Printf("Tier:        %s\n", lic.Tier)
			cmd.Printf("Status:      %s\n", lic.Status)
			cmd.Printf("Expires:     %s (%d days left)\n", lic.ExpiryDate.Format("2006-01-02"), lic.DaysLeft(time.Now()))
			if lic.MachineID != nil {
				cmd.Printf("Machine:     %s\n", *lic.MachineID)
			} else {
				cmd.Printf("Machine:     (unbound)\n")
			}
			if info.Limit < 0 {
				cmd.Printf("Usage:       %d this period (unlimited)\n", info.Used)
			} else {
				cmd.Printf("Usage:       %d/%d this period, resets %s\n", info.Used, info.Limit, info.PeriodResetsAt.Format("2006-01-02"))
			}
			if lic.LastUsedAt != nil {
				cmd.Printf("Last used:   %s\n", lic.LastUsedAt.Format(time.RFC3339))
			}
			if lic.Notes != "" {
				cmd.Printf("Notes:       %s\n", lic.Notes)
			}
			return nil
		},
	}

	return command
}

func runLicenseExtendCommand(configDir, dataDir *string) *cobra.Command {
	var days int

	command := &cobra.Command{
		Use:   "extend <key>",
		Short: "Extend a license's expiry date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("days must be positive")
			}

			licenses, _, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			lic, err := licenses.Extend(context.Background(), strings.TrimSpace(args[0]), days)
			if err != nil {
				return fmt.Errorf("failed to extend license: %w", err)
			}

			cmd.Printf("License %s now expires %s\n", lic.Key, lic.ExpiryDate.Format("2006-01-02"))
			return nil
		},
	}

	command.Flags().IntVar(&days, "days", 30, "days to add to the current expiry date")

	return command
}

func runLicenseSetStatusCommand(configDir, dataDir *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "set-status <key> <status>",
		Short: "Set a license's status (active, inactive or suspended)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := strings.TrimSpace(args[1])
			if !models.ValidLicenseStatus(status) {
				return fmt.Errorf("invalid status %q", status)
			}

			licenses, _, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := licenses.SetStatus(context.Background(), strings.TrimSpace(args[0]), status); err != nil {
				return fmt.Errorf("failed to set status: %w", err)
			}

			cmd.Printf("License status set to %s\n", status)
			return nil
		},
	}

	return command
}

func runLicenseResetMachineCommand(configDir, dataDir *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "reset-machine <key>",
		Short: "Clear a license's machine binding so it can activate elsewhere",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			licenses, _, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := licenses.ResetMachine(context.Background(), strings.TrimSpace(args[0])); err != nil {
				return fmt.Errorf("failed to reset machine binding: %w", err)
			}

			cmd.Println("Machine binding cleared")
			return nil
		},
	}

	return command
}

func runLicenseClearFlagCommand(configDir, dataDir *string) *cobra.Command {
	command := &cobra.Command{
		Use:   "clear-flag <key>",
		Short: "Clear a license's suspicious-activity flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, tracker, closeDB, err := openStores(*configDir, *dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := tracker.ClearFlag(context.Background(), strings.TrimSpace(args[0])); err != nil {
				return fmt.Errorf("failed to clear flag: %w", err)
			}

			cmd.Println("Suspicious flag cleared")
			return nil
		},
	}

	return command
}
