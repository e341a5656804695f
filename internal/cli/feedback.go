package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/glucomem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "List or resolve suggestion feedback",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List suggestions",
		Run:   runFeedbackList,
	}
	list.Flags().Bool("pending", false, "Only suggestions awaiting feedback")
	list.Flags().Bool("resolved", false, "Only suggestions with feedback")
	list.Flags().IntP("limit", "l", 20, "Max results")

	resolve := &cobra.Command{
		Use:   "resolve [feedback-id]",
		Short: "Record what happened after a suggestion",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackResolve,
	}
	resolve.Flags().Bool("taken", false, "The suggestion was acted on")
	resolve.Flags().String("outcome", "", "What happened (required with --taken)")
	resolve.Flags().Float64("before", 0, "Blood sugar before, mmol/L")
	resolve.Flags().Float64("after", 0, "Blood sugar after, mmol/L")
	resolve.Flags().Int("score", 0, "Effectiveness score 1-10")

	cmd.AddCommand(list, resolve)
	RootCmd.AddCommand(cmd)
}

func runFeedbackList(cmd *cobra.Command, args []string) {
	userID := requireUser()
	pending, _ := cmd.Flags().GetBool("pending")
	resolved, _ := cmd.Flags().GetBool("resolved")
	limit, _ := cmd.Flags().GetInt("limit")

	cfg := loadConfig()
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	records, err := s.ListFeedback(cmd.Context(), store.ListFeedbackParams{
		UserID:       userID,
		PendingOnly:  pending,
		ResolvedOnly: resolved,
		Limit:        limit,
	})
	if err != nil {
		exitErr("list feedback", err)
	}
	printJSON(records)
}

func runFeedbackResolve(cmd *cobra.Command, args []string) {
	userID := requireUser()
	taken, _ := cmd.Flags().GetBool("taken")
	outcome, _ := cmd.Flags().GetString("outcome")

	p := store.ResolveFeedbackParams{
		UserID:             userID,
		FeedbackID:         args[0],
		ActionTaken:        taken,
		OutcomeDescription: outcome,
	}
	if cmd.Flags().Changed("before") {
		v, _ := cmd.Flags().GetFloat64("before")
		p.BloodSugarBefore = &v
	}
	if cmd.Flags().Changed("after") {
		v, _ := cmd.Flags().GetFloat64("after")
		p.BloodSugarAfter = &v
	}
	if cmd.Flags().Changed("score") {
		v, _ := cmd.Flags().GetInt("score")
		p.EffectivenessScore = &v
	}
	if err := p.Validate(); err != nil {
		exitErr("feedback", err)
	}

	cfg := loadConfig()
	p.At = now(cfg)
	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	f, err := s.ResolveFeedback(cmd.Context(), p)
	if err != nil {
		exitErr("resolve feedback", err)
	}
	printJSON(f)
}
