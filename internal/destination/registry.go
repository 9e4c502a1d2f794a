// Package destination contains the backend adapters a backup run can write to.
package destination

import (
	"fmt"
	"strings"

	"multidest-backup/internal/transfer"
)

// NewRegistry returns a registry with every built-in adapter
func NewRegistry() *transfer.Registry {
	return transfer.NewRegistry(
		NewLocalAdapter(),
		NewNASAdapter(),
		NewGDriveAdapter(),
		NewDropboxAdapter(),
		NewS3Adapter(),
		NewAzureAdapter(),
		NewGCSAdapter(),
		NewSFTPAdapter(),
	)
}

// ConfigKeys lists the configuration keys each built-in kind reads
var ConfigKeys = map[transfer.DestinationKind][]string{
	transfer.DestinationLocal:   {"path"},
	transfer.DestinationNAS:     {"server", "share", "username", "password", "port", "domain"},
	transfer.DestinationGDrive:  {"credentials_path", "folder_name"},
	transfer.DestinationDropbox: {"token", "folder_path"},
	transfer.DestinationS3:      {"bucket", "region", "access_key", "secret_key", "prefix", "endpoint"},
	transfer.DestinationAzure:   {"account_name", "account_key", "container", "prefix"},
	transfer.DestinationGCS:     {"bucket", "credentials_path", "prefix"},
	transfer.DestinationSFTP:    {"host", "port", "username", "password", "key_path", "path", "known_hosts"},
}

func invalidConfig(kind transfer.DestinationKind, err error) *transfer.TransferError {
	te := transfer.NewValidationError(fmt.Sprintf("invalid %s configuration", kind), err)
	if verrs, ok := err.(transfer.ValidationErrors); ok {
		fields := make([]string, 0, len(verrs))
		for _, v := range verrs {
			fields = append(fields, v.Field)
		}
		te.WithRemediation(fmt.Sprintf("Provide: %s", strings.Join(fields, ", ")))
	}
	return te
}
