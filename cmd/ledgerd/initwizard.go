package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/germanamz/ledgerd/pkg/engine"
	"github.com/germanamz/ledgerd/pkg/ledgerdir"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// wizardAnswers holds the values collected by the init form.
type wizardAnswers struct {
	Driver            string
	DiscoveryKind     string
	InitiallyAttached bool
	RetryDelay        string
	Security          string
	Listen            string
	LogLevel          string
}

func defaultAnswers() wizardAnswers {
	def := engine.DefaultConfig()
	return wizardAnswers{
		Driver:        def.Device.Driver,
		DiscoveryKind: def.Discovery.Kind,
		RetryDelay:    def.Device.RetryDelay,
		Security:      strconv.Itoa(def.Device.Security),
		Listen:        def.Control.Listen,
		LogLevel:      def.Log.Level,
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dir := fs.String("ledgerd-dir", ledgerdir.DefaultRoot, "path to .ledgerd directory")
	yes := fs.Bool("yes", false, "write the default config without prompting")
	_ = fs.Parse(args)

	d := ledgerdir.New(*dir)

	moved, err := ledgerdir.MigrateLegacyConfig(d, ".")
	if err != nil {
		return err
	}
	if moved {
		fmt.Printf("Moved %s to %s\n", ledgerdir.LegacyConfigName, d.ConfigPath())
	}

	answers := defaultAnswers()
	if !*yes {
		if err := runWizard(&answers); err != nil {
			return err
		}
	}

	data, err := marshalConfig(answers)
	if err != nil {
		return err
	}

	existing, err := ledgerdir.ReadConfig(d)
	if err != nil {
		return err
	}

	if existing != nil {
		diff := configDiff(d.ConfigPath(), string(existing), string(data))
		if diff == "" {
			fmt.Printf("%s is up to date\n", d.ConfigPath())
			return nil
		}

		fmt.Print(diff)

		if !*yes {
			overwrite := false
			if err := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().Title("Overwrite the existing config?").Value(&overwrite),
			)).Run(); err != nil {
				return err
			}
			if !overwrite {
				return nil
			}
		}
	}

	if err := ledgerdir.WriteConfig(d, data); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", d.ConfigPath())
	return nil
}

func runWizard(a *wizardAnswers) error {
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Device driver").
				Options(huh.NewOption("Simulator", "sim")).
				Value(&a.Driver),
			huh.NewSelect[string]().
				Title("Device discovery").
				Options(
					huh.NewOption("USB (sysfs)", "sysfs"),
					huh.NewOption("Manual (attach/detach over HTTP)", "manual"),
				).
				Value(&a.DiscoveryKind),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Retry delay while the application is closed").
				Value(&a.RetryDelay).
				Validate(validateDuration),
			huh.NewInput().
				Title("Default security level").
				Value(&a.Security).
				Validate(validateSecurity),
			huh.NewInput().
				Title("Control listen address").
				Value(&a.Listen),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&a.LogLevel),
		),
	).Run(); err != nil {
		return err
	}

	if a.DiscoveryKind != "manual" {
		return nil
	}

	return huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title("Start with the device attached?").Value(&a.InitiallyAttached),
	)).Run()
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration (e.g. 4s)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateSecurity(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

// marshalConfig applies answers over the defaults, validates the result and
// encodes it as YAML.
func marshalConfig(a wizardAnswers) ([]byte, error) {
	cfg := engine.DefaultConfig()
	cfg.Device.Driver = a.Driver
	cfg.Device.RetryDelay = a.RetryDelay
	cfg.Discovery.Kind = a.DiscoveryKind
	cfg.Discovery.InitiallyAttached = a.InitiallyAttached
	cfg.Control.Listen = a.Listen
	cfg.Log.Level = a.LogLevel

	if err := validateSecurity(a.Security); err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	cfg.Device.Security, _ = strconv.Atoi(a.Security)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

// configDiff returns a unified diff between the current and proposed config,
// or "" when they are equal.
func configDiff(path, current, proposed string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(current),
		B:        difflib.SplitLines(proposed),
		FromFile: path,
		ToFile:   path + " (new)",
		Context:  3,
	}

	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("(diff error: %v)\n", err)
	}
	return out
}
