package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"multidest-backup/internal/display"
	"multidest-backup/internal/transfer"
)

var credentialsFormat string

// credentialsCmd stores secrets shared by every profile of a destination kind
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Store destination credentials in the settings file",
	Long: `Store destination credentials in the settings file. They are merged into
every backup of that destination kind; flags and profile settings win.
Environment variables such as BACKUP_DROPBOX_TOKEN override stored values.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <destination> <key=value...>",
	Short: "Store one or more credential values",
	Long: `Store one or more credential values.

Examples:
  multidest-backup credentials set dropbox token=sl.B3...
  multidest-backup credentials set nas username=backup password=secret domain=WORKGROUP
  multidest-backup credentials set gdrive credentials_path=~/drive-service-account.json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCredentialsSet,
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show [destination]",
	Short: "Show stored credentials with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCredentialsShow,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsShowCmd)

	credentialsShowCmd.Flags().StringVarP(&credentialsFormat, "output", "o", "table", "output format (table, json, yaml)")
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	kind := transfer.ParseDestinationKind(args[0])

	values := make(map[string]string, len(args)-1)
	for _, arg := range args[1:] {
		key, val, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid credential %q, expected key=value", arg)
		}
		values[key] = val
	}

	if err := newStore().UpdateCredentials(kind, values); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d %s credential value(s)\n", len(values), kind)
	return nil
}

func runCredentialsShow(cmd *cobra.Command, args []string) error {
	format, err := display.ParseOutputFormat(credentialsFormat)
	if err != nil {
		return err
	}

	settings, err := newStore().Load()
	if err != nil {
		return err
	}

	kinds := newRegistry().Kinds()
	if len(args) == 1 {
		kinds = []transfer.DestinationKind{transfer.ParseDestinationKind(args[0])}
	}

	rows := make([][]string, 0)
	for _, kind := range kinds {
		values := settings.Credentials.Values(kind)
		redacted := values.Redacted()
		for _, key := range values.Keys() {
			rows = append(rows, []string{string(kind), key, redacted[key]})
		}
	}

	return display.NewOutputWriter(format, cmd.OutOrStdout()).
		WriteTable([]string{"destination", "key", "value"}, rows)
}
