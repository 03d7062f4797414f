package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Options хранит глобальные флаги CLI.
type Options struct {
	Verbose bool
}

// NewRootCommand собирает корневую команду docsync.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - оптимистичная синхронизация документов между репликами",
		Long: `docsync прогоняет сценарии синхронизации документа между несколькими
репликами через общий упорядочивающий лог: офлайн-правки, конфликты,
повторы при устаревшей версии и восстановление после undo.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "подробный вывод (debug-логи)")

	cmd.AddCommand(newDemoCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newLogger(opts *Options) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
