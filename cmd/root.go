package cmd

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nsxbet/sqlguard/pkg/config"
	"github.com/nsxbet/sqlguard/pkg/logger"
	"github.com/nsxbet/sqlguard/pkg/types"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sqlguard",
	Short: "A SQL risk classifier for shared databases",
	Long: `sqlguard classifies SQL by the risk of executing it: read-only,
safe modification (create and insert), or dangerous (anything that can
alter or destroy existing data or schema, or change permissions).

It parses MySQL, PostgreSQL and SQLite, looks inside CTE bodies and other
nested statements, and treats anything it cannot recognize as dangerous.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logger.Level(viper.GetBool("verbose"), viper.GetBool("debug"))
		slog.SetDefault(logger.NewConsole(cmd.ErrOrStderr(), level).GetSlogLogger())
		if used := viper.ConfigFileUsed(); used != "" {
			slog.Debug("Using config file", "file", used)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sqlguard.yaml in the working or home directory)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringP("output", "o", "text", "output format (text, json, yaml)")
}

// bindFlags binds the flags to viper keys. The classify flags share their
// keys with the config file.
func bindFlags() {
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("engine", classifyCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("strict_fallback", classifyCmd.Flags().Lookup("strict-fallback"))
	_ = viper.BindPFlag("max_parse_length", classifyCmd.Flags().Lookup("max-length"))
	_ = viper.BindPFlag("fail-on-dangerous", classifyCmd.Flags().Lookup("fail-on-dangerous"))
	_ = viper.BindPFlag("fail-on-modify", classifyCmd.Flags().Lookup("fail-on-modify"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	bindFlags()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sqlguard")
	}

	viper.SetEnvPrefix("SQLGUARD")
	viper.AutomaticEnv() // read in environment variables that match

	// A missing config file is fine; the defaults apply.
	if err := viper.ReadInConfig(); err != nil {
		slog.Debug("Config file not loaded", logger.Error(err))
	}
}

// loadConfig loads the config file found by viper and applies the flags and
// environment variables set on top of it.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if used := viper.ConfigFileUsed(); used != "" {
		loaded, err := config.LoadFromFile(used)
		if err != nil && cfgFile != "" {
			return nil, err
		}
		if err != nil {
			slog.Warn("Ignoring invalid config file", "file", used, logger.Error(err))
		} else {
			cfg = loaded
		}
	}

	if viper.IsSet("engine") {
		engine, err := types.ParseEngine(viper.GetString("engine"))
		if err != nil {
			return nil, err
		}
		cfg.Engine = engine
	}
	if viper.IsSet("strict_fallback") {
		cfg.StrictFallback = viper.GetBool("strict_fallback")
	}
	if viper.IsSet("max_parse_length") {
		cfg.MaxParseLength = viper.GetInt("max_parse_length")
	}
	if viper.IsSet("cache_size") {
		cfg.CacheSize = viper.GetInt("cache_size")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
