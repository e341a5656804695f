// Package cli implements the glucomem CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcliao/glucomem/internal/config"
	"github.com/rcliao/glucomem/internal/consolidate"
	"github.com/rcliao/glucomem/internal/logger"
	"github.com/rcliao/glucomem/internal/store"
	"github.com/rcliao/glucomem/internal/timeexpr"
)

var (
	dbPath     string
	tzFlag     string
	userFlag   string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "glucomem",
	Short: "Memory consolidation for a diabetes assistant",
	Long: "Turns the memory update blocks in assistant replies into durable records, " +
		"promotes repeated activity into habits, and assembles context for the next prompt.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $GLUCOMEM_DB_PATH or ~/.glucomem/glucomem.db)")
	RootCmd.PersistentFlags().StringVar(&tzFlag, "tz", "", "IANA time zone for time expressions (default: $GLUCOMEM_TIMEZONE or Local)")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User id")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() *config.Config {
	cfg, err := config.New()
	if err != nil {
		exitErr("config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if tzFlag != "" {
		if err := cfg.SetTimezone(tzFlag); err != nil {
			exitErr("config", err)
		}
	}
	return cfg
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DBPath)
}

// newLogger writes to stderr so stdout carries only command output.
func newLogger(cfg *config.Config) zerolog.Logger {
	return logger.NewWithWriter("glucomem", os.Stderr, cfg.Level())
}

func newConsolidator(cfg *config.Config, s store.Store, log zerolog.Logger) *consolidate.Consolidator {
	rc := consolidate.NewReconciler(s, log,
		consolidate.WithResolver(timeexpr.Default),
		consolidate.WithSimilarity(consolidate.NewPrefixRule(cfg.PatternPrefixRunes)),
		consolidate.WithWriteRetries(cfg.WriteRetries),
	)
	return consolidate.NewConsolidator(s, log, rc, newDetector(cfg, s, log))
}

func newDetector(cfg *config.Config, s store.Store, log zerolog.Logger) *consolidate.Detector {
	return consolidate.NewDetector(s, log,
		consolidate.WithWindowDays(cfg.HabitWindowDays),
		consolidate.WithDetectorRetries(cfg.WriteRetries),
	)
}

// now is the current time in the configured zone, so "today" means the user's today.
func now(cfg *config.Config) time.Time {
	return time.Now().In(cfg.Location())
}

func requireUser() string {
	if userFlag == "" {
		if env := os.Getenv(config.Prefix + "_USER"); env != "" {
			return env
		}
		exitErr("user", fmt.Errorf("--user is required"))
	}
	return userFlag
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
