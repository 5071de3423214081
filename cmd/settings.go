package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
	"github.com/xkilldash9x/listing-refresher/internal/observability"
	"github.com/xkilldash9x/listing-refresher/internal/service"
	"github.com/xkilldash9x/listing-refresher/internal/settings"
	"github.com/xkilldash9x/listing-refresher/internal/store"
)

func newSettingsCmd() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and change the bot settings stored in the database",
	}
	settingsCmd.AddCommand(newSettingsListCmd(), newSettingsGetCmd(), newSettingsSetCmd())
	return settingsCmd
}

// withStore opens the datastore for one admin command.
func withStore(cmd *cobra.Command, fn func(repo store.Repository) error) error {
	cfg, err := configFrom(cmd)
	if err != nil {
		return err
	}
	repo, err := service.InitializeStore(cmd.Context(), cfg.Database, observability.GetLogger())
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}

func newSettingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(repo store.Repository) error {
				all, err := repo.ListSettings(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "KEY\tVALUE\tTYPE\tACTIVE\tDESCRIPTION")
				for _, s := range all {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", s.Key, s.Value, s.Type, s.Active, s.Description)
				}
				return w.Flush()
			})
		},
	}
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the stored value of one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(repo store.Repository) error {
				s, ok, err := repo.GetSetting(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("setting %q is not set", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.Value)
				return nil
			})
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Create or replace one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			typ, err := settings.Validate(key, value)
			if err != nil {
				return err
			}

			return withStore(cmd, func(repo store.Repository) error {
				row := schemas.Setting{Key: key, Value: value, Type: typ, Active: true, UpdatedAt: time.Now().UTC()}
				if prev, ok, err := repo.GetSetting(cmd.Context(), key); err == nil && ok {
					row.Description = prev.Description
				} else if d, ok := settings.Default(key); ok {
					row.Description = d.Description
				}
				if err := repo.SetSetting(cmd.Context(), row); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
				return nil
			})
		},
	}
}
