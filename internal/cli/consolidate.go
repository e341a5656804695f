package cli

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/glucomem/internal/consolidate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate one conversational turn",
		Long: "Read an assistant reply (from --reply, --reply-file, or stdin), apply its memory " +
			"update block for the user, run habit detection, and print the result.",
		Run: runConsolidate,
	}

	cmd.Flags().StringP("message", "m", "", "The user's message for this turn")
	cmd.Flags().String("reply", "", "Assistant reply text")
	cmd.Flags().String("reply-file", "", "Read the assistant reply from a file")
	cmd.Flags().String("now", "", "Turn time as RFC3339 (default: current time)")
	cmd.Flags().String("session", "", "Session id (default: a new ULID)")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	userID := requireUser()
	message, _ := cmd.Flags().GetString("message")
	reply, _ := cmd.Flags().GetString("reply")
	replyFile, _ := cmd.Flags().GetString("reply-file")
	nowStr, _ := cmd.Flags().GetString("now")
	session, _ := cmd.Flags().GetString("session")

	switch {
	case reply != "":
	case replyFile != "":
		b, err := os.ReadFile(replyFile)
		if err != nil {
			exitErr("read reply", err)
		}
		reply = string(b)
	default:
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			exitErr("read stdin", err)
		}
		reply = string(b)
	}

	cfg := loadConfig()
	at := now(cfg)
	if nowStr != "" {
		t, err := time.Parse(time.RFC3339, nowStr)
		if err != nil {
			exitErr("parse --now", err)
		}
		at = t.In(cfg.Location())
	}

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	out := newConsolidator(cfg, s, newLogger(cfg)).ProcessTurn(cmd.Context(), consolidate.Input{
		RawAssistantText: reply,
		UserMessage:      message,
		UserID:           userID,
		Now:              at,
		SessionID:        session,
	})
	printJSON(out)
}
