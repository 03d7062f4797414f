package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/docsync/internal/demo"
)

func newDemoCommand(opts *Options) *cobra.Command {
	var (
		scenarioPath string
		seed         int64
		contention   int
		edits        int
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Прогнать сценарии синхронизации",
		Long: `Прогоняет встроенные сценарии синхронизации или сценарий из YAML-файла
и печатает отчёт. С флагом --contention вместо сценариев запускается
нагрузочная проверка: N реплик одновременно редактируют общий документ
и сходятся к одному состоянию.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(opts)
			ctx := cmd.Context()

			if contention > 0 {
				if err := demo.RunContention(ctx, logger, contention, edits, seed); err != nil {
					return fmt.Errorf("contention run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "contention: %d replicas x %d edits converged\n", contention, edits)
				return nil
			}

			var scenarios []*demo.Scenario
			if scenarioPath != "" {
				s, err := demo.Load(scenarioPath)
				if err != nil {
					return fmt.Errorf("load scenario: %w", err)
				}
				scenarios = append(scenarios, s)
			} else {
				scenarios = demo.Builtin()
			}

			runner := demo.NewRunner(logger)

			failed := false
			for _, s := range scenarios {
				if seed != 0 {
					s.Seed = seed
				}

				report, err := runner.Run(ctx, s)
				if err != nil {
					return fmt.Errorf("run scenario %q: %w", s.Name, err)
				}

				fmt.Fprint(cmd.OutOrStdout(), report.Summary())

				if !report.Passed() {
					failed = true
				}
			}

			if failed {
				return errors.New("one or more scenarios failed")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "путь к YAML-файлу сценария (по умолчанию встроенные)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "переопределить seed сетевых задержек")
	cmd.Flags().IntVar(&contention, "contention", 0, "запустить нагрузочную проверку с N репликами")
	cmd.Flags().IntVar(&edits, "edits", 5, "правок на реплику в нагрузочной проверке")

	return cmd
}
