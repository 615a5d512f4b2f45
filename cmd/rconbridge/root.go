package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   util.AppName,
	Short: "Source RCON gateway",
	Long: `rconbridge talks to game servers over the Source RCON protocol. It can run
one-off commands, open an interactive console or serve a REST API in front
of every configured server. Flags can also be set through environment
variables named RCONBRIDGE_<FLAG> (e.g. RCONBRIDGE_CONFIG_DIR=/etc/rconbridge).`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initEnv)

	rootCmd.PersistentFlags().String("config-dir", config.DefaultConfigDir, "Directory holding config.json")
	rootCmd.PersistentFlags().String("log-level", "", "Override the configured log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, execCmd, consoleCmd, serversCmd, tokenCmd, initCmd, versionCmd)
}

// initEnv loads .env files and maps RCONBRIDGE_* variables onto flags.
func initEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("rconbridge")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags makes the command's flags (including inherited ones) visible
// to viper.
func bindFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

// loadConfig reads the configuration file and sets up logging from it.
// quietConsole lowers the default level so one-shot commands only print
// their result.
func loadConfig(cmd *cobra.Command, quietConsole bool) (*config.Config, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, err
	}

	if err := initQuietLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(viper.GetString("config-dir"))
	if err != nil {
		return nil, err
	}

	logCfg := cfg.GetApplicationData().Logging.LogConfig()
	if quietConsole {
		logCfg.Level = "warn"
	}
	logCfg.Level = logLevel(logCfg.Level)
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	return cfg, nil
}

// logLevel returns the --log-level override, or fallback.
func logLevel(fallback string) string {
	if lvl := viper.GetString("log-level"); lvl != "" {
		return lvl
	}
	return fallback
}

// reportValidation logs warnings and returns the validation error, if any.
func reportValidation(cfg *config.Config) error {
	result := config.Validate(cfg)
	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	for _, e := range result.Errors {
		log.Error().Str("field", e.Field).Msg(e.Message)
	}
	return result.Err()
}

// initQuietLogger sets up console-only logging for commands that do not
// read the configuration file.
func initQuietLogger() error {
	logCfg := util.DefaultLogConfig()
	logCfg.Directory = ""
	logCfg.Level = logLevel("warn")
	return util.InitLogger(logCfg)
}
