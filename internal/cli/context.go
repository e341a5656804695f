package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/glucomem/internal/recall"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Assemble the memory context for a user's next prompt",
		Long:  "Load the profile, preferences, patterns, recent readings and events, and rated feedback. Use -f text for the prompt rendering.",
		Run:   runContext,
	}

	cmd.Flags().Int("events", 10, "Recent events to include")
	cmd.Flags().Int("readings", 5, "Recent blood sugar readings to include")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	userID := requireUser()
	events, _ := cmd.Flags().GetInt("events")
	readings, _ := cmd.Flags().GetInt("readings")

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	a := recall.NewAssembler(s, cfg.Location())
	p := recall.DefaultParams(userID)
	p.Events, p.BloodSugar = events, readings

	b, err := a.Assemble(cmd.Context(), p)
	if err != nil {
		exitErr("context", err)
	}

	if formatFlag == "text" {
		fmt.Print(a.Render(b))
		return
	}
	printJSON(b)
}
