package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's memory as JSON",
		Long:  "Export the profile, events, domain records, preferences, patterns, and feedback of one user.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	userID := requireUser()

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	export, err := s.ExportAll(cmd.Context(), userID)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(export)
}
