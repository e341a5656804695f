package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:       "list [preferences|patterns|events|blood-sugar|turns]",
		Short:     "List stored memory for a user",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"preferences", "patterns", "events", "blood-sugar", "turns"},
		Run:       runList,
	}

	cmd.Flags().StringP("type", "t", "", "Filter preferences by type")
	cmd.Flags().Int("min-evidence", 0, "Only patterns with at least this much evidence")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("keys-only", false, "Only output ids and contents")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	userID := requireUser()
	prefType, _ := cmd.Flags().GetString("type")
	minEvidence, _ := cmd.Flags().GetInt("min-evidence")
	limit, _ := cmd.Flags().GetInt("limit")
	keysOnly, _ := cmd.Flags().GetBool("keys-only")

	if prefType != "" && !model.ValidPreferenceTypes[prefType] {
		exitErr("list", fmt.Errorf("unknown preference type %q", prefType))
	}

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()
	ctx := cmd.Context()

	switch args[0] {
	case "preferences":
		prefs, err := s.ListPreferences(ctx, store.ListPreferencesParams{UserID: userID, Type: prefType, Limit: limit})
		if err != nil {
			exitErr("list", err)
		}
		if keysOnly {
			for _, p := range prefs {
				fmt.Printf("%s\t%s\t%s\n", p.ID, p.Type, p.Content)
			}
			return
		}
		printJSON(prefs)
	case "patterns":
		patterns, err := s.ListPatterns(ctx, store.ListPatternsParams{UserID: userID, MinEvidence: minEvidence, Limit: limit})
		if err != nil {
			exitErr("list", err)
		}
		if keysOnly {
			for _, p := range patterns {
				fmt.Printf("%s\t%d\t%s\n", p.ID, p.EvidenceCount, p.Description)
			}
			return
		}
		printJSON(patterns)
	case "events":
		events, err := s.RecentEvents(ctx, userID, limit)
		if err != nil {
			exitErr("list", err)
		}
		printJSON(events)
	case "blood-sugar":
		readings, err := s.RecentBloodSugar(ctx, userID, limit)
		if err != nil {
			exitErr("list", err)
		}
		printJSON(readings)
	case "turns":
		logs, err := s.ListTurnLogs(ctx, userID, limit)
		if err != nil {
			exitErr("list", err)
		}
		printJSON(logs)
	default:
		exitErr("list", fmt.Errorf("unknown collection %q", args[0]))
	}
}
