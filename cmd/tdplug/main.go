// Command tdplug is the CLI surface of the plugin host runtime: list,
// install, enable, disable, inspect, and configure plugins.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/todoplug/hostrt/internal/logger"
)

// hostInterfaceVersion is this build's interface version, checked against
// every discovered plugin's min_interface_version.
const hostInterfaceVersion = "1.0.0"

const defaultMarketplace = "todoplug/plugins"

type app struct {
	pluginsDir string
	v          *viper.Viper
}

func newApp(pluginsDir, configPath string) (*app, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("reading config %s: %w", configPath, err)
			}
		}
	}
	return &app{pluginsDir: pluginsDir, v: v}, nil
}

func (a *app) disabledPlugins() []string {
	return a.v.GetStringSlice("plugins.disabled")
}

func (a *app) marketplaceCatalogURL() string {
	ref := a.v.GetString("marketplaces.default")
	if ref == "" {
		ref = defaultMarketplace
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/main/marketplace.toml", ref)
}

func main() {
	logger.Initialize("info", true)

	var pluginsDir, configPath string

	root := &cobra.Command{
		Use:           "tdplug",
		Short:         "Manage todo-manager plugins",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&pluginsDir, "plugins-dir", defaultPluginsDir(), "plugin installation directory")
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "user config file")

	var a *app
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = newApp(pluginsDir, configPath)
		return err
	}

	pluginCmd := &cobra.Command{Use: "plugin", Short: "Plugin management commands"}
	pluginCmd.AddCommand(
		newListCmd(&a),
		newInstallCmd(&a),
		newEnableCmd(&a),
		newDisableCmd(&a),
		newStatusCmd(&a),
		newConfigCmd(&a),
		newValidateCmd(&a),
	)
	root.AddCommand(pluginCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultPluginsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./plugins"
	}
	return filepath.Join(home, ".local", "share", "tdplug", "plugins")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "tdplug", "config.toml")
}
