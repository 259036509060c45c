package cmd

import (
	"log/slog"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nsxbet/sqlguard/pkg/dbms"
	"github.com/nsxbet/sqlguard/pkg/logger"
)

var bindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "List the database bindings of the config file",
	Long: `Open the bindings of the config file and list the ones that resolve
to a database handle, with the name used by exec --db.`,
	Args: cobra.NoArgs,
	RunE: runBindings,
}

func init() {
	rootCmd.AddCommand(bindingsCmd)
}

func runBindings(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	env, err := dbms.Open(cmd.Context(), cfg.Bindings)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			slog.Warn("Failed to close bindings", logger.Error(err))
		}
	}()

	handles := dbms.Resolve(env)
	report := bindingsReport{Bindings: []bindingReport{}}
	for key, binding := range cfg.Bindings {
		if _, ok := handles[dbms.BindingName(key)]; !ok || !binding.IsDatabase() {
			continue
		}
		engine, _ := dbms.EngineForDriver(binding.Driver)
		report.Bindings = append(report.Bindings, bindingReport{
			Name:   dbms.BindingName(key),
			Key:    key,
			Driver: binding.Driver,
			Engine: engine.String(),
		})
	}
	sort.Slice(report.Bindings, func(i, j int) bool {
		return report.Bindings[i].Name < report.Bindings[j].Name
	})

	return writeReport(cmd.OutOrStdout(), viper.GetString("output"), report)
}
