package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lehigh-university-libraries/fotobox/internal/service"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		serviceURL string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status TASK_ID",
		Short: "Show the state of a processing task",
		Long: `Queries the processing service for the task created by an upload.

The service answers Processing while the worker runs, Completed with the
task result, or Failed.`,
		Example: `  fotobox status 3f1c2a9e-6b4d-4c1e-9a57-0d8f5e2b7c10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if serviceURL != "" {
				cfg.ServiceURL = serviceURL
			}

			client := service.NewClient(cfg.ServiceBase(), cfg.RequestTimeout)
			status, err := client.TaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status.Status)
			keys := make([]string, 0, len(status.Result))
			for k := range status.Result {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", k, status.Result[k])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serviceURL, "service-url", "", "Base URL of the processing service")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status as JSON")

	return cmd
}
