// xrce-agentd is the standalone XRCE-DDS Agent process: it wires one
// transport (UDP, TCP, Serial, QUIC or WebSocket) to a single Dispatcher and runs
// until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/config"
	"github.com/xrce-go/agent/pkg/dds"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logrus.WithError(err).Error("xrce-agentd exiting")
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var flags config.Flags

	flagSet := pflag.NewFlagSet("xrce-agentd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML configuration file")
	flags.AddFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	conf := config.Default()
	if configPath != "" {
		var err error
		conf, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	conf = flags.Apply(conf, flagSet)

	if err := conf.Validate(); err != nil {
		return err
	}

	configureLogging(conf.Logging)

	server, closer, err := newTransportServer(conf.Transport, newAgent(conf))
	if err != nil {
		return err
	}
	defer closer()

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- server.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("xrce-agentd: transport serve: %w", err)
		}
	case sig := <-sigCh:
		logrus.WithField("signal", sig).Info("shutting down")
	}

	return nil
}

func newAgent(conf config.Config) *agent.Agent {
	return agent.New(dds.NullFacade{}, logrus.WithField("node", conf.Agent.NodeName))
}

func configureLogging(conf config.LogConf) {
	if conf.Level != "" {
		if lvl, err := logrus.ParseLevel(conf.Level); err != nil {
			logrus.WithFields(logrus.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("failed to set log level, keeping default")
		} else {
			logrus.SetLevel(lvl)
		}
	}
	logrus.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		logrus.Warn("unknown logging format, keeping default")
	}
}
