package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run habit detection for a user",
		Run:   runDetect,
	}

	cmd.Flags().Int("window", 0, "Window in days (default: $GLUCOMEM_HABIT_WINDOW_DAYS)")

	RootCmd.AddCommand(cmd)
}

func runDetect(cmd *cobra.Command, args []string) {
	userID := requireUser()
	window, _ := cmd.Flags().GetInt("window")

	cfg := loadConfig()
	if window > 0 {
		cfg.HabitWindowDays = window
	}

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	report := newDetector(cfg, s, newLogger(cfg)).Detect(cmd.Context(), userID, now(cfg))
	printJSON(report)
}
