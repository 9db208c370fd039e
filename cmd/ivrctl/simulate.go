package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arzzra/ivr_control/pkg/mgcp/transport/mock"
)

type simulateOptions struct {
	listen   string
	text     string
	interim  int
	failRC   int
	reject   int
	manualES bool
	specific string
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated AU package media gateway on UDP",
		Long: `simulate answers RQNT commands like a media gateway with the advanced
audio package: it acknowledges AU/asr, reports recognition results with
AU/oc(rc=101 asrr=<hex>) and completes with AU/oc(rc=100).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := root.logger(cfg)
			if err != nil {
				return err
			}

			sim, err := mock.NewSimulator(opts.listen, opts.behavior(), logger)
			if err != nil {
				return err
			}
			defer sim.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "simulated gateway listening on %s\n", sim.Addr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			fmt.Fprintf(cmd.OutOrStdout(), "handled %d commands\n", sim.Received())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.listen, "listen", "127.0.0.1:2427", "UDP address to listen on")
	f.StringVar(&opts.text, "text", "Super_text", "recognized text reported to the call agent")
	f.IntVar(&opts.interim, "interim", 2, "number of interim results before completion")
	f.IntVar(&opts.failRC, "fail-rc", 0, "report AU/of with this return code instead of results")
	f.IntVar(&opts.reject, "reject", 0, "reject every command with this return code")
	f.BoolVar(&opts.manualES, "wait-for-stop", false, "report one result and wait for AU/es")
	f.StringVar(&opts.specific, "specific-endpoint", "", "answer wildcard endpoints with this Z: name")
	return cmd
}

func (o *simulateOptions) behavior() mock.Behavior {
	var b mock.Behavior
	switch {
	case o.reject != 0:
		b = mock.RejectingBehavior(o.reject)
	case o.failRC != 0:
		b = mock.FailingBehavior(o.failRC)
	case o.manualES:
		b = mock.EndSignalBehavior(o.text)
	default:
		b = mock.AsrBehavior(o.text, o.interim)
	}
	if o.specific != "" {
		b = mock.WithSpecificEndpoint(b, o.specific)
	}
	return b
}
