package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/vmdev/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains and their stored device sets",
	Long: `List all libvirt domains, running or not, with the device set stored in
their metadata and the phase it was last recorded in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer closeClient(client)

		domains, err := client.ListDomains(cmd.Context(), log)
		if err != nil {
			return err
		}

		summaries := make([]output.DomainSummary, 0, len(domains))
		for _, d := range domains {
			summaries = append(summaries, output.DomainSummary{
				Name:      d.Name,
				State:     d.State,
				DeviceSet: d.DeviceSet,
				Phase:     d.Phase,
				Devices:   d.Devices,
			})
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatDomains(summaries)
		if err != nil {
			return err
		}
		fmt.Print(result)
		return nil
	},
}
