package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/todoplug/hostrt/internal/abi"
	"github.com/todoplug/hostrt/internal/installer"
	"github.com/todoplug/hostrt/internal/loader"
	"github.com/todoplug/hostrt/internal/pluginconfig"
	"github.com/todoplug/hostrt/internal/registry"
)

// loadRegistry discovers and applies user overrides, the read path every
// subcommand below starts from.
func (a *app) loadRegistry() (*registry.Registry, error) {
	reg := registry.New(a.pluginsDir, hostInterfaceVersion)
	if _, err := reg.Discover(); err != nil {
		return nil, err
	}
	reg.ApplyConfig(a.disabledPlugins())
	return reg, nil
}

func newListCmd(ap **app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *ap
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tSTATUS\tSOURCE")
			for _, info := range reg.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Manifest.Name, info.Manifest.Version, statusOf(info), sourceOf(info))
			}
			return w.Flush()
		},
	}
}

func statusOf(info *abi.Info) string {
	switch {
	case info.Error != "":
		return "error"
	case !info.Available:
		return "incompatible"
	case !info.Enabled:
		return "disabled"
	default:
		return "enabled"
	}
}

func sourceOf(info *abi.Info) string {
	if info.Origin == "" {
		return "unknown"
	}
	return info.Origin
}

func newInstallCmd(ap **app) *cobra.Command {
	var version string
	var force bool

	cmd := &cobra.Command{
		Use:   "install <source>",
		Short: "Install a plugin from a local path or owner/repo[/plugin] reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *ap
			src, err := installer.ParseSource(args[0])
			if err != nil {
				return err
			}

			inst := installer.New(a.pluginsDir, a.marketplaceCatalogURL(), hostInterfaceVersion)

			destName := src.Plugin
			if src.Kind == installer.SourceLocal {
				destName = localPluginName(src.Path)
			}
			if !force {
				if _, statErr := os.Stat(filepath.Join(a.pluginsDir, destName)); statErr == nil {
					return fmt.Errorf("%s is already installed, pass --force to reinstall", destName)
				}
			}

			switch src.Kind {
			case installer.SourceLocal:
				return inst.InstallLocal(localPluginName(src.Path), src.Path)
			default:
				return inst.InstallRemote(context.Background(), src, version)
			}
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "install a specific version (defaults to the catalog's latest)")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even if the plugin directory already exists")
	return cmd
}

func localPluginName(path string) string {
	return filepath.Base(filepath.Clean(path))
}

func newEnableCmd(ap **app) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a disabled plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*ap).setDisabled(args[0], false)
		},
	}
}

func newDisableCmd(ap **app) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a plugin without uninstalling it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*ap).setDisabled(args[0], true)
		},
	}
}

// setDisabled rewrites the user config's plugins.disabled list and persists
// it, since enable/disable are the only CLI commands that mutate config.
func (a *app) setDisabled(name string, disabled bool) error {
	current := a.disabledPlugins()
	next := make([]string, 0, len(current)+1)
	found := false
	for _, n := range current {
		if n == name {
			found = true
			if disabled {
				next = append(next, n)
			}
			continue
		}
		next = append(next, n)
	}
	if disabled && !found {
		next = append(next, name)
	}
	a.v.Set("plugins.disabled", next)
	return a.v.WriteConfig()
}

func newStatusCmd(ap **app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show detailed status for one plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *ap
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}
			info, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("plugin %q not found", args[0])
			}
			fmt.Printf("name:       %s\n", info.Manifest.Name)
			fmt.Printf("version:    %s\n", info.Manifest.Version)
			fmt.Printf("status:     %s\n", statusOf(info))
			fmt.Printf("source:     %s\n", sourceOf(info))
			fmt.Printf("dir:        %s\n", info.Dir)
			if info.Error != "" {
				fmt.Printf("error:      %s\n", info.Error)
			}
			if info.AvailabilityReason != "" {
				fmt.Printf("reason:     %s\n", info.AvailabilityReason)
			}
			for _, act := range info.Manifest.Actions {
				fmt.Printf("action:     %s (default key %q) — %s\n", act.Name, act.DefaultKey, act.Description)
			}
			return nil
		},
	}
}

func newConfigCmd(ap **app) *cobra.Command {
	var initFlag bool

	cmd := &cobra.Command{
		Use:   "config <name>",
		Short: "Show or initialize a plugin's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *ap
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}
			info, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("plugin %q not found", args[0])
			}

			lp, err := loader.New(hostInterfaceVersion).Load(info)
			if err != nil {
				return err
			}
			var schema []abi.ConfigField
			if callErr := lp.Call(func() error {
				schema = lp.Handler().ConfigSchema()
				return nil
			}); callErr != nil {
				return callErr
			}

			if initFlag {
				return pluginconfig.WriteTemplate(info.Manifest.Name, info.Dir, schema)
			}

			cfg, err := pluginconfig.Load(info.Manifest.Name, info.Dir, schema)
			if err != nil {
				return err
			}
			for k, v := range cfg {
				fmt.Printf("%s = %v\n", k, v)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&initFlag, "init", false, "generate a template config file instead of showing the current one")
	return cmd
}

func newValidateCmd(ap **app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name>",
		Short: "Validate a plugin's manifest and confirm it loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := *ap
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}
			info, ok := reg.Get(args[0])
			if !ok {
				return fmt.Errorf("plugin %q not found", args[0])
			}
			if info.Error != "" {
				return fmt.Errorf("manifest error: %s", info.Error)
			}
			if !info.Available {
				return fmt.Errorf("incompatible: %s", info.AvailabilityReason)
			}
			if _, err := loader.New(hostInterfaceVersion).Load(info); err != nil {
				return err
			}
			fmt.Printf("%s: valid\n", info.Manifest.Name)
			return nil
		},
	}
}
