package main

import (
	"github.com/spf13/cobra"

	"github.com/arzzra/ivr_control/pkg/config"
	"github.com/arzzra/ivr_control/pkg/logging"
)

// rootOptions глобальные флаги
type rootOptions struct {
	configFile string
	logLevel   string
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) (logging.Logger, error) {
	return logging.New(cfg.Log)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ivrctl",
		Short: "ivrctl - IVR speech recognition control for MGCP media gateways",
		Long: `ivrctl drives speech recognition (AU/asr) signals on the IVR endpoints
of an MGCP media gateway and prints the recognition results.

Commands:
  - recognize: run one recognition against a gateway
  - simulate:  run a simulated AU package gateway on UDP
  - config:    print the effective configuration`,
		SilenceUsage: true,
		Version:      "0.1.0",
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(newRecognizeCmd(opts))
	root.AddCommand(newSimulateCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	return root
}
