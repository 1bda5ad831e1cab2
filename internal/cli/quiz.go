package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"quiz-proctor/internal/domain"
)

// quizFile is the authoring format accepted by "quiz import".
type quizFile struct {
	Name            string            `yaml:"name"`
	OwnerID         string            `yaml:"ownerId"`
	DurationMinutes int               `yaml:"durationMinutes"`
	DurationSeconds int               `yaml:"durationSeconds"`
	Questions       []domain.Question `yaml:"questions"`
}

func (f quizFile) toQuiz() domain.Quiz {
	seconds := f.DurationSeconds
	if seconds == 0 {
		seconds = f.DurationMinutes * 60
	}
	return domain.Quiz{
		OwnerID:         f.OwnerID,
		Name:            f.Name,
		DurationSeconds: seconds,
		Questions:       f.Questions,
	}
}

func readQuizFile(path string) (domain.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Quiz{}, err
	}
	var f quizFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.Quiz{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.toQuiz(), nil
}

// NewQuizCmd groups the catalog commands.
func NewQuizCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Manage the quiz catalog",
	}
	cmd.AddCommand(newQuizImportCmd(configPath), newQuizUpdateCmd(configPath), newQuizListCmd(configPath), newQuizDeleteCmd(configPath))
	return cmd
}

func newQuizImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create a quiz from a YAML file and print its join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiz, err := readQuizFile(args[0])
			if err != nil {
				return err
			}
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			created, err := b.catalog.Create(quiz)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
}

func newQuizUpdateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update <quiz-id> <file.yaml>",
		Short: "Replace a quiz's content; students who took the old version may retake it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiz, err := readQuizFile(args[1])
			if err != nil {
				return err
			}
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			updated, err := b.catalog.Update(args[0], quiz)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated at %s\n", updated.ID, updated.LastUpdated.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newQuizListCmd(configPath *string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			quizzes, err := b.catalog.List(owner)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tQUESTIONS\tDURATION\tUPDATED")
			for _, q := range quizzes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%ds\t%s\n", q.ID, q.Name, len(q.Questions), q.DurationSeconds, q.LastUpdated.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only quizzes of this instructor")
	return cmd
}

func newQuizDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <quiz-id>",
		Short: "Soft-delete a quiz; submissions and history are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openSharedBackend(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer b.Close()
			return b.catalog.SoftDelete(args[0])
		},
	}
}
