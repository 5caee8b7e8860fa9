package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"

	"quiz-roulette-service/internal/config"
	"quiz-roulette-service/internal/domain"
)

// NewSeedCmd loads questions from a YAML file into the question bank.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		file     string
		truncate bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions from a YAML file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, file, truncate)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/questions.yaml", "path to the questions YAML file")
	cmd.Flags().BoolVar(&truncate, "truncate", false, "clear the questions table before seeding")
	return cmd
}

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	Theme     string `yaml:"theme"`
	Statement string `yaml:"statement"`
	OptionA   string `yaml:"optionA"`
	OptionB   string `yaml:"optionB"`
	OptionC   string `yaml:"optionC"`
	OptionD   string `yaml:"optionD"`
	Correct   string `yaml:"correct"`
	ImageURL  string `yaml:"imageUrl"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID        int64  `bun:"id,pk,autoincrement"`
	Theme     string `bun:"theme,notnull"`
	Statement string `bun:"statement,notnull"`
	OptA      string `bun:"opt_a,notnull"`
	OptB      string `bun:"opt_b,notnull"`
	OptC      string `bun:"opt_c,notnull"`
	OptD      string `bun:"opt_d,notnull"`
	Correct   string `bun:"correct,notnull"`
	ImageURL  string `bun:"image_url,nullzero"`
}

func runSeed(ctx context.Context, configPath, file string, truncate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	rows := make([]questionRow, 0, len(seed.Questions))
	for i, q := range seed.Questions {
		if !domain.Theme(q.Theme).Valid() {
			return fmt.Errorf("question %d: unknown theme %q", i+1, q.Theme)
		}
		if _, ok := domain.ParseOption(q.Correct); !ok {
			return fmt.Errorf("question %d: correct must be A-D, got %q", i+1, q.Correct)
		}
		rows = append(rows, questionRow{
			Theme:     q.Theme,
			Statement: q.Statement,
			OptA:      q.OptionA,
			OptB:      q.OptionB,
			OptC:      q.OptionC,
			OptD:      q.OptionD,
			Correct:   q.Correct,
			ImageURL:  q.ImageURL,
		})
	}
	if len(rows) == 0 {
		return fmt.Errorf("seed file has no questions")
	}

	db := openBunDB(cfg.Postgres.URL)
	defer db.Close()

	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if truncate {
			if _, err := tx.NewTruncateTable().Model((*questionRow)(nil)).Exec(ctx); err != nil {
				return fmt.Errorf("truncate questions: %w", err)
			}
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		log.Printf("seeded %d questions", len(rows))
		return nil
	})
}
