package cmd

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nsxbet/sqlguard/pkg/dbms"
	"github.com/nsxbet/sqlguard/pkg/gate"
	"github.com/nsxbet/sqlguard/pkg/logger"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] <sql|->",
	Short: "Run SQL against a configured database through the gate",
	Long: `Run SQL against one of the database bindings of the config file.

The SQL is classified first and refused unless the mode allows it:
readonly runs only read-only SQL, safe also allows creates and inserts,
unrestricted allows anything. Read-only SQL prints its rows; other SQL
prints the number of rows affected.`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().String("db", dbms.DefaultName, "database binding name")
	execCmd.Flags().String("mode", gate.ModeReadonly.String(), "allowed SQL (readonly, safe, unrestricted)")
}

func runExec(cmd *cobra.Command, args []string) error {
	slog.Debug("Starting exec command", "args", args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	modeName, _ := cmd.Flags().GetString("mode")
	mode, err := gate.ParseMode(modeName)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("db")

	var statement string
	if args[0] == "-" {
		statement, err = readStatement(cmd, nil)
		if err != nil {
			return err
		}
	} else {
		statement = args[0]
	}

	ctx := cmd.Context()
	env, err := dbms.Open(ctx, cfg.Bindings)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			slog.Warn("Failed to close bindings", logger.Error(err))
		}
	}()

	l := logger.Default()
	opts := []gate.Option{
		gate.WithClassifier(cfg.Classifier(l)),
		gate.WithLogger(l),
	}
	classifiers := cfg.DatabaseClassifiers(l)
	for db, c := range classifiers {
		opts = append(opts, gate.WithDatabaseClassifier(db, c))
	}
	g := gate.New(dbms.Resolve(env), opts...)

	outcome, err := g.Run(ctx, name, mode, statement)
	if err != nil {
		if errors.Is(err, gate.ErrUnknownDatabase) {
			return errors.Wrapf(err, "available databases: %s", strings.Join(g.Databases(), ", "))
		}
		if errors.Is(err, gate.ErrDenied) {
			return errors.Wrap(err, gate.Describe(outcome.Classification))
		}
		return err
	}

	output := viper.GetString("output")
	if outcome.Result != nil {
		return writeReport(cmd.OutOrStdout(), output, newQueryReport(outcome.Result))
	}
	return writeReport(cmd.OutOrStdout(), output, execReport{RowsAffected: outcome.RowsAffected})
}
