package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/agent"
	"github.com/xrce-go/agent/pkg/config"
	"github.com/xrce-go/agent/pkg/transport/quicxrce"
	"github.com/xrce-go/agent/pkg/transport/serialxrce"
	"github.com/xrce-go/agent/pkg/transport/tcpxrce"
	"github.com/xrce-go/agent/pkg/transport/udpxrce"
	"github.com/xrce-go/agent/pkg/transport/wsxrce"
)

// transportServer is whatever a concrete transport's Listen/Open
// constructor returns: something that can run an accept/receive loop
// and be torn down on shutdown.
type transportServer interface {
	Serve() error
}

// newTransportServer opens the transport named by conf.Kind and returns
// its Server together with a closer that stops the Agent and the
// transport together, in that order, so in-flight replies are dropped
// before the socket disappears rather than racing it.
func newTransportServer(conf config.TransportConf, a *agent.Agent) (transportServer, func() error, error) {
	log := logrus.WithField("component", "xrce-agentd")

	switch conf.Kind {
	case "udp":
		srv, err := udpxrce.Listen(fmt.Sprintf(":%d", conf.Port), a, log)
		if err != nil {
			return nil, nil, fmt.Errorf("xrce-agentd: %w", err)
		}
		return srv, closerFor(a, srv), nil

	case "tcp":
		srv, err := tcpxrce.Listen(fmt.Sprintf(":%d", conf.Port), int64(conf.PoolSize), a, log)
		if err != nil {
			return nil, nil, fmt.Errorf("xrce-agentd: %w", err)
		}
		return srv, closerFor(a, srv), nil

	case "serial":
		srv, err := serialxrce.Open(conf.Device, a, log)
		if err != nil {
			return nil, nil, fmt.Errorf("xrce-agentd: %w", err)
		}
		return srv, closerFor(a, srv), nil

	case "quic":
		srv, err := quicxrce.Listen(fmt.Sprintf(":%d", conf.Port), a, log)
		if err != nil {
			return nil, nil, fmt.Errorf("xrce-agentd: %w", err)
		}
		return srv, closerFor(a, srv), nil

	case "ws":
		srv, err := wsxrce.Listen(fmt.Sprintf(":%d", conf.Port), a, log)
		if err != nil {
			return nil, nil, fmt.Errorf("xrce-agentd: %w", err)
		}
		return srv, closerFor(a, srv), nil

	default:
		return nil, nil, fmt.Errorf("xrce-agentd: unknown transport kind %q", conf.Kind)
	}
}

type closable interface {
	Close() error
}

func closerFor(a *agent.Agent, transport closable) func() error {
	return func() error {
		err := a.Stop()
		if closeErr := transport.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	}
}
