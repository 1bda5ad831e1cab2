package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewResultsCmd prints the instructor results table of a quiz.
func NewResultsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "results <quiz-id>",
		Short: "Show all submissions of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			records, err := b.service.Results(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STUDENT\tNAME\tSCORE\tVIOLATIONS\tTIME\tRELEASED\tSUBMITTED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%g/%g\t%d\t%ds\t%t\t%s\n",
					r.StudentID, r.StudentName, r.Score, r.TotalScore, r.Violations,
					r.TimeTakenSeconds, r.IsReleased, r.SubmittedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

// NewGradeCmd scores one essay rubric criterion.
func NewGradeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "grade <quiz-id> <student-id> <question-key> <criterion-index> <points>",
		Short: "Score one rubric criterion of an essay answer",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			criterion, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("criterion index: %w", err)
			}
			points, err := strconv.ParseFloat(args[4], 64)
			if err != nil {
				return fmt.Errorf("points: %w", err)
			}
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			rec, err := b.service.GradeCriterion(args[0], args[1], args[2], criterion, points)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %g/%g\n", rec.StudentID, rec.Score, rec.TotalScore)
			return nil
		},
	}
}

// NewReleaseCmd releases the results of every submission of a quiz.
func NewReleaseCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "release <quiz-id>",
		Short: "Release results to every student who took the quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			n, err := b.service.Release(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d submissions\n", n)
			return nil
		},
	}
}
