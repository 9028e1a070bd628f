// Package backendscmder provides the simstore backends command.
package backendscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/simstore/pkg/vector/registry"
)

const backendsLongDesc string = `List the storage backends registered with simstore.

Any listed name can be used as vector_store.provider or --provider.`

const backendsShortDesc string = "List registered storage backends"

func NewBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: backendsShortDesc,
		Long:  backendsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range registry.Default().List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
