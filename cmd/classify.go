package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/reviewer"
	"github.com/nsxbet/sqlguard/pkg/risk"
)

var (
	errDangerous = errors.New("SQL is dangerous")
	errModify    = errors.New("SQL modifies the database")
)

var classifyCmd = &cobra.Command{
	Use:   "classify [flags] [sql-file|-]",
	Short: "Classify SQL statements by risk",
	Long: `Classify the SQL statements in a file, on standard input, or given
with --sql, and report whether running them is read-only, a safe
modification, or dangerous.

With --fail-on-dangerous or --fail-on-modify the command exits with a
non-zero code when the SQL is dangerous or modifies the database.
With --per-statement every statement is also classified on its own.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	// Flags for classify command
	classifyCmd.Flags().StringP("engine", "e", "sqlite", "database engine (mysql, postgres, sqlite)")
	classifyCmd.Flags().StringP("sql", "s", "", "SQL to classify instead of a file")
	classifyCmd.Flags().Bool("strict-fallback", false, "treat SQL the parser rejects as dangerous")
	classifyCmd.Flags().Int("max-length", risk.DefaultMaxParseLength, "longest SQL handed to the parser")
	classifyCmd.Flags().Bool("fail-on-dangerous", false, "exit with non-zero code if the SQL is dangerous")
	classifyCmd.Flags().Bool("fail-on-modify", false, "exit with non-zero code if the SQL is not read-only")
	classifyCmd.Flags().Bool("per-statement", false, "also classify every statement on its own")
}

func runClassify(cmd *cobra.Command, args []string) error {
	slog.Debug("Starting classify command", "args", args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	statement, err := readStatement(cmd, args)
	if err != nil {
		return err
	}
	slog.Debug("SQL read successfully", "size", len(statement))

	perStatement, _ := cmd.Flags().GetBool("per-statement")

	var report *classificationReport
	var classification risk.Classification
	if perStatement {
		r := reviewer.New(cfg.Engine, cfg.ClassifierOptions(logger.Default())...)
		result, err := r.Review(cmd.Context(), statement)
		if err != nil {
			return errors.Wrap(err, "failed to review SQL")
		}
		classification = result.Overall
		report = newClassificationReport(classification)
		report.Review = newStatementReports(result.Statements)
	} else {
		classification = cfg.Classifier(logger.Default()).Classify(statement)
		report = newClassificationReport(classification)
	}
	slog.Debug("SQL classified",
		"engine", classification.Engine.String(),
		"tier", classification.Tier.String(),
		"source", classification.Extraction.Source.String())

	if err := writeReport(cmd.OutOrStdout(), viper.GetString("output"), report); err != nil {
		return err
	}

	if classification.Dangerous && viper.GetBool("fail-on-dangerous") {
		return errDangerous
	}
	if classification.Modify && viper.GetBool("fail-on-modify") {
		return errModify
	}
	return nil
}

// readStatement returns the SQL of --sql, the file argument, or standard
// input when the argument is "-" or missing.
func readStatement(cmd *cobra.Command, args []string) (string, error) {
	if cmd.Flags().Changed("sql") {
		if len(args) > 0 {
			return "", errors.New("--sql cannot be combined with a file argument")
		}
		return cmd.Flags().GetString("sql")
	}

	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", errors.Wrap(err, "failed to read SQL from standard input")
		}
		return string(data), nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", errors.Wrapf(err, "failed to read SQL file: %s", args[0])
	}
	return string(data), nil
}
