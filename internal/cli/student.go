package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quiz-proctor/internal/app"
)

// NewJoinCmd adds a quiz to a student's joined list.
func NewJoinCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "join <quiz-id> <student-id>",
		Short: "Join a quiz by its 6-digit code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			quiz, err := b.service.Join(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %s (%s)\n", quiz.Name, quiz.ID)
			return nil
		},
	}
}

// NewHistoryCmd prints a student's quiz history.
func NewHistoryCmd(configPath *string) *cobra.Command {
	var filter app.HistoryFilter
	cmd := &cobra.Command{
		Use:   "history <student-id>",
		Short: "List the quizzes a student has taken, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			entries, err := b.service.History(args[0], filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUIZ\tTITLE\tSCORE\tTAKEN\tRELEASED")
			for _, e := range entries {
				score := "pending"
				if e.IsReleased {
					score = fmt.Sprintf("%g/%g", e.Score, e.TotalScore)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", e.QuizID, e.QuizTitle, score, e.DateTaken.Format("2006-01-02 15:04"), e.IsReleased)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Title, "title", "", "title substring")
	cmd.Flags().StringVar(&filter.Month, "month", "", "month taken, YYYY-MM")
	return cmd
}
