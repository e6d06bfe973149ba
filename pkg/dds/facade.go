// Package dds provides the DDS middleware boundary the registry drives.
// The middleware itself is out of scope; this package only supplies the
// boilerplate "no real DDS" implementation used by tests and by agents
// run without a middleware binding.
package dds

import "github.com/xrce-go/agent/pkg/registry"

// NullFacade is a registry.Facade that accepts every operation without
// talking to any middleware. It is useful for integration tests that
// exercise the wire protocol and the registry's bookkeeping without
// requiring a DDS installation.
type NullFacade struct{}

var _ registry.Facade = NullFacade{}

func (NullFacade) CreateParticipant(registry.ObjectID, []byte) error { return nil }

func (NullFacade) CreateTopic(registry.ObjectID, registry.ObjectID, []byte) error { return nil }

func (NullFacade) CreatePublisher(registry.ObjectID, registry.ObjectID) error { return nil }

func (NullFacade) CreateSubscriber(registry.ObjectID, registry.ObjectID) error { return nil }

func (NullFacade) CreateWriter(registry.ObjectID, registry.ObjectID, registry.ObjectID, []byte) error {
	return nil
}

func (NullFacade) CreateReader(registry.ObjectID, registry.ObjectID, registry.ObjectID, []byte, registry.SampleCallback) error {
	return nil
}

func (NullFacade) Destroy(registry.ObjectID) error { return nil }

func (NullFacade) Write(registry.ObjectID, []byte) error { return nil }

func (NullFacade) Read(registry.ObjectID, uint16) error { return nil }
