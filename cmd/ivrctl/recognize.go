package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arzzra/ivr_control/pkg/config"
	"github.com/arzzra/ivr_control/pkg/ivr"
	"github.com/arzzra/ivr_control/pkg/logging"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
)

type recognizeOptions struct {
	gateway     string
	local       string
	endpoint    string
	driver      string
	language    string
	prompts     []string
	hints       string
	metricsAddr string
	wait        time.Duration
}

func newRecognizeCmd(root *rootOptions) *cobra.Command {
	opts := &recognizeOptions{}

	cmd := &cobra.Command{
		Use:   "recognize",
		Short: "Run one speech recognition on the gateway and print results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := root.logger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runRecognize(ctx, cfg, opts, logger, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.gateway, "gateway", "", "media gateway address host:port")
	f.StringVar(&opts.local, "local", "", "local UDP address host:port")
	f.StringVar(&opts.endpoint, "endpoint", "", "IVR endpoint name")
	f.StringVar(&opts.driver, "driver", "", "recognition driver")
	f.StringVar(&opts.language, "language", "", "recognition language")
	f.StringSliceVar(&opts.prompts, "prompt", nil, "prompt URI (repeatable)")
	f.StringVar(&opts.hints, "hints", "", "recognition hints")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	f.DurationVar(&opts.wait, "wait", 0, "stop the signal after this duration (default: asr timers + request timeout)")
	return cmd
}

// apply переносит явно заданные флаги в конфигурацию
func (o *recognizeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("gateway") {
		cfg.Gateway.Address = o.gateway
	}
	if f.Changed("local") {
		cfg.Gateway.LocalAddress = o.local
	}
	if f.Changed("endpoint") {
		cfg.Gateway.EndpointName = o.endpoint
	}
	if f.Changed("driver") {
		cfg.Asr.Driver = o.driver
	}
	if f.Changed("language") {
		cfg.Asr.Language = o.language
	}
	if f.Changed("prompt") {
		cfg.Asr.Prompts = o.prompts
	}
	if f.Changed("hints") {
		cfg.Asr.Hints = o.hints
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Listen = o.metricsAddr
	}
}

func runRecognize(ctx context.Context, cfg *config.Config, opts *recognizeOptions, logger logging.Logger, out io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ivr.NewMetrics(reg)

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	tr, err := transport.NewUDPTransport(transport.UDPConfig{
		LocalAddr:      cfg.Gateway.LocalAddress,
		GatewayAddr:    cfg.Gateway.Address,
		RequestTimeout: cfg.Gateway.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer tr.Close()

	ctrl, err := ivr.NewController(tr, ivr.ControllerConfig{
		EndpointName: cfg.Gateway.EndpointName,
		MailboxSize:  cfg.Gateway.MailboxSize,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	session, err := ctrl.CreateMediaSession()
	if err != nil {
		return err
	}
	ep, err := ctrl.CreateIvrEndpoint(session)
	if err != nil {
		return err
	}

	responses := make(chan ivr.Response, 64)
	ep.Subscribe(ivr.ChannelListener(responses))

	sig, err := cfg.Asr.Signal()
	if err != nil {
		return err
	}
	if err := ep.Start(ctx, sig); err != nil {
		return err
	}
	fmt.Fprintf(out, "started %s on %s\n", sig, ep.Address())

	wait := opts.wait
	if wait <= 0 {
		wait = cfg.Asr.MaxDuration + cfg.Asr.WaitingTime + cfg.Gateway.RequestTimeout
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	stopping := false
	requestStop := func() error {
		if stopping {
			return nil
		}
		stopping = true
		fmt.Fprintln(out, "stopping signal")
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.RequestTimeout)
		defer cancel()
		err := ep.Stop(stopCtx)
		if errors.Is(err, ivr.ErrNoActiveSignal) {
			return nil
		}
		// после остановки ждем подтверждения не дольше таймаута запроса
		deadline.Reset(cfg.Gateway.RequestTimeout)
		return err
	}

	done := ctx.Done()
	for {
		select {
		case r := <-responses:
			switch {
			case !r.Succeeded:
				fmt.Fprintf(out, "failed: %s\n", r.CauseText())
				return r.Cause
			case r.IsCompletion():
				fmt.Fprintln(out, "completed")
				return nil
			default:
				fmt.Fprintf(out, "result: %s\n", r.Result.Text)
			}
		case <-done:
			done = nil
			if err := requestStop(); err != nil {
				return err
			}
		case <-deadline.C:
			if stopping {
				return errors.New("gateway did not confirm signal stop")
			}
			if err := requestStop(); err != nil {
				return err
			}
		}
	}
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "metrics server failed", logging.Err(err))
		}
	}()
	logger.Info(context.Background(), "metrics server started",
		logging.String("addr", cfg.Listen), logging.String("path", cfg.Path))
	return srv
}
