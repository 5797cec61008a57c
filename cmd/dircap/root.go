package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lucasew/dircap/internal/errutil"
	"github.com/lucasew/dircap/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dircap",
	Short: "Keeps a directory from holding too many files",
	Long: `dircap watches ~/test and, whenever it holds more regular files than the
configured limit, deletes the oldest one. Run "dircap run" to start the watchdog
and use "dircap status", "dircap limit" and "dircap quit" to talk to it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Setup(viper.GetString("log-level"), viper.GetString("log-format"), os.Stderr)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if _, printErr := fmt.Fprintln(os.Stderr, err); printErr != nil {
			errutil.ReportError(printErr, "Failed to print error to stderr")
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (any format viper reads, e.g. TOML)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "auto", "Log format (auto, text, json)")
	rootCmd.PersistentFlags().String("control-addr", "127.0.0.1:7878", "Address of the control server (empty disables it)")

	mustBindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	mustBindPFlag("control-addr", rootCmd.PersistentFlags().Lookup("control-addr"))
}

func initConfig() {
	viper.SetEnvPrefix("DIRCAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			errutil.ReportError(err, "Failed to read config file", "path", cfgFile)
			os.Exit(1)
		}
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", key, err))
	}
}
