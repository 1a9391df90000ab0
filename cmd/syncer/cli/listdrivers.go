package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newListDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-drivers",
		Short: "List the dialect drivers the Syncer can open",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListDrivers()
		},
	}
}

func runListDrivers() error {
	names := make([]string, 0, len(supportedDrivers))
	for n := range supportedDrivers {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
