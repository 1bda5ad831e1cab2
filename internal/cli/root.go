package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	// a .env file is optional
	_ = godotenv.Load()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "quiz-proctor",
		Short:         "Timed, proctored quizzes with rubric grading",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&port, "port", os.Getenv("PORT"), "port to listen on (overrides config)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewServeCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewQuizCmd(&configPath))
	cmd.AddCommand(NewResultsCmd(&configPath))
	cmd.AddCommand(NewGradeCmd(&configPath))
	cmd.AddCommand(NewReleaseCmd(&configPath))
	cmd.AddCommand(NewJoinCmd(&configPath))
	cmd.AddCommand(NewHistoryCmd(&configPath))
	return cmd
}
