package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"multidest-backup/internal/config"
	"multidest-backup/internal/display"
	"multidest-backup/internal/transfer"
)

var (
	profileDestination destinationFlags
	profileListFormat  string
	profileShowFormat  string
)

// profileCmd groups the stored profile commands
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage stored backup profiles",
	Long: `A profile is a saved backup request: the source folders, the destination kind
and its settings. Secrets are never stored in a profile; use "credentials set".`,
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name> <sources...>",
	Short: "Create or replace a profile",
	Long: `Create or replace a profile.

Examples:
  multidest-backup profile save documents ~/Documents --dest nas --server 10.0.0.2 --share data
  multidest-backup profile save photos ~/Pictures --dest gdrive --folder Photos`,
	Args: cobra.MinimumNArgs(2),
	RunE: runProfileSave,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored profiles",
	Args:  cobra.NoArgs,
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a profile with its effective destination settings",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a profile",
	Long:  `Delete a profile. A schedule that runs the profile is disabled.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSaveCmd, profileListCmd, profileShowCmd, profileDeleteCmd)

	profileDestination.register(profileSaveCmd)
	profileSaveCmd.MarkFlagRequired("dest")

	profileListCmd.Flags().StringVarP(&profileListFormat, "output", "o", "table", "output format (table, json, yaml)")
	profileShowCmd.Flags().StringVarP(&profileShowFormat, "output", "o", "yaml", "output format (json, yaml)")
}

func runProfileSave(cmd *cobra.Command, args []string) error {
	name, sources := args[0], args[1:]

	kind := profileDestination.kind("")
	if _, err := newRegistry().Lookup(kind); err != nil {
		return err
	}
	cfg, err := profileDestination.config(kind)
	if err != nil {
		return err
	}

	dropped := make([]string, 0)
	for key := range cfg {
		if secretKeys[key] {
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)

	profile := config.Profile{
		Sources:     sources,
		Destination: string(kind),
		Config:      withoutSecrets(cfg),
	}
	if err := newStore().SaveProfile(name, profile); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Saved profile %q (%s, %d sources)\n", name, kind, len(sources))
	if len(dropped) > 0 {
		fmt.Fprintf(out, "Not stored in the profile: %s. Use \"credentials set %s\" to keep them.\n",
			strings.Join(dropped, ", "), kind)
	}
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	format, err := display.ParseOutputFormat(profileListFormat)
	if err != nil {
		return err
	}

	settings, err := newStore().Load()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(settings.Profiles))
	for _, name := range settings.ProfileNames() {
		p := settings.Profiles[name]
		scheduled := ""
		if settings.Schedule.Enabled && settings.Schedule.Profile == name {
			scheduled = string(settings.Schedule.Frequency)
		}
		rows = append(rows, []string{name, p.Destination, strings.Join(p.Sources, ", "), scheduled})
	}

	return display.NewOutputWriter(format, cmd.OutOrStdout()).
		WriteTable([]string{"name", "destination", "sources", "schedule"}, rows)
}

// profileView is the document printed by "profile show"
type profileView struct {
	Name        string            `json:"name" yaml:"name"`
	Sources     []string          `json:"sources" yaml:"sources"`
	Destination string            `json:"destination" yaml:"destination"`
	Settings    map[string]string `json:"settings" yaml:"settings"`
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	format, err := display.ParseOutputFormat(profileShowFormat)
	if err != nil {
		return err
	}

	store := newStore()
	profile, err := store.LoadProfile(args[0])
	if err != nil {
		return err
	}

	kind := transfer.ParseDestinationKind(profile.Destination)
	cfg, err := store.DestinationConfig(kind, profile.Config)
	if err != nil {
		return err
	}

	return display.NewOutputWriter(format, cmd.OutOrStdout()).WriteValue(profileView{
		Name:        args[0],
		Sources:     profile.Sources,
		Destination: string(kind),
		Settings:    cfg.Redacted(),
	})
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	if err := newStore().DeleteProfile(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %q\n", args[0])
	return nil
}
