package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/energizer-project/rconbridge/internal/config"
	"github.com/energizer-project/rconbridge/internal/server"
)

// adhocName names the target built from --address.
const adhocName = "adhoc"

// addTargetFlags registers the flags that pick the server exec and console
// talk to.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Name of a configured server")
	cmd.Flags().String("address", "", "RCON address (host:port), bypasses the configuration file")
	cmd.Flags().String("password", "", "RCON password used with --address")
	cmd.Flags().Int("read-timeout", 0, "Read timeout in seconds (0 = configured or default)")
	cmd.Flags().Int("write-timeout", 0, "Write timeout in seconds (0 = configured or default)")
	cmd.Flags().Int("connect-timeout", 0, "Connect timeout in seconds (0 = configured or default)")
}

// resolveTarget builds a manager for the selected server and returns its
// name. With --address no configuration file is read. When anyServer is
// set and no server was chosen, every configured server is kept and the
// returned name is empty.
func resolveTarget(cmd *cobra.Command, anyServer bool) (*server.Manager, string, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, "", err
	}

	var (
		cfg    *config.Config
		target config.ServerTarget
	)

	if addr := viper.GetString("address"); addr != "" {
		if err := config.ValidateAddress(addr); err != nil {
			return nil, "", err
		}
		if err := initQuietLogger(); err != nil {
			return nil, "", err
		}
		cfg = config.DefaultConfig()
		target = config.ServerTarget{
			Name:     adhocName,
			Address:  addr,
			Password: viper.GetString("password"),
			Enabled:  true,
		}
	} else {
		var err error
		cfg, err = loadConfig(cmd, true)
		if err != nil {
			return nil, "", err
		}
		if anyServer && viper.GetString("server") == "" {
			return server.NewManager(cfg, nil), "", nil
		}
		target, err = pickTarget(cfg, viper.GetString("server"))
		if err != nil {
			return nil, "", err
		}
	}

	if v := viper.GetInt("read-timeout"); v > 0 {
		target.ReadTimeoutSec = v
	}
	if v := viper.GetInt("write-timeout"); v > 0 {
		target.WriteTimeoutSec = v
	}
	if v := viper.GetInt("connect-timeout"); v > 0 {
		target.ConnectTimeoutSec = v
	}
	cfg.UpsertTarget(target)

	return server.NewManager(cfg, nil), target.Name, nil
}

// pickTarget returns the named server, or the only enabled one when name
// is empty.
func pickTarget(cfg *config.Config, name string) (config.ServerTarget, error) {
	if name != "" {
		t, ok := cfg.Target(name)
		if !ok {
			return config.ServerTarget{}, fmt.Errorf("%w: %s", server.ErrUnknownServer, name)
		}
		return t, nil
	}

	var enabled []config.ServerTarget
	for _, t := range cfg.GetRCONData().Servers {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	switch len(enabled) {
	case 0:
		return config.ServerTarget{}, fmt.Errorf("no enabled servers in %s, use --server or --address", cfg.Path())
	case 1:
		return enabled[0], nil
	default:
		return config.ServerTarget{}, fmt.Errorf("%d servers configured, choose one with --server", len(enabled))
	}
}
