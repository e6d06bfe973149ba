// Package registry implements the per-client ObjectRegistry: the
// mapping from ObjectID to proxy object, parent/child bookkeeping and
// creation-mode rules of §4.3.
package registry

import "fmt"

// ObjectID is the 16-bit identifier of a proxy object. Its low 4 bits
// encode the object's Kind; the upper 12 bits identify the instance
// within the session.
type ObjectID uint16

// Kind extracts the object kind from the low 4 bits of id.
func (id ObjectID) Kind() Kind {
	return Kind(id & 0x0F)
}

func (id ObjectID) String() string {
	return fmt.Sprintf("0x%04X", uint16(id))
}

// Kind is the tagged-variant discriminator for a proxy object, replacing
// the original's runtime down-casts over a polymorphic base (§9).
type Kind uint8

const (
	KindParticipant Kind = 0x1
	KindTopic       Kind = 0x2
	KindPublisher   Kind = 0x3
	KindSubscriber  Kind = 0x4
	KindDataWriter  Kind = 0x5
	KindDataReader  Kind = 0x6
)

func (k Kind) String() string {
	switch k {
	case KindParticipant:
		return "PARTICIPANT"
	case KindTopic:
		return "TOPIC"
	case KindPublisher:
		return "PUBLISHER"
	case KindSubscriber:
		return "SUBSCRIBER"
	case KindDataWriter:
		return "DATA_WRITER"
	case KindDataReader:
		return "DATA_READER"
	default:
		return fmt.Sprintf("UNKNOWN(0x%X)", uint8(k))
	}
}

// Object is a tagged-variant proxy object: one struct, a Kind
// discriminator, and Parent/TopicID edges resolved through the registry
// on use rather than held as owning pointers (§9's redesign of the
// original's raw back-pointers).
type Object struct {
	ID             ObjectID
	Kind           Kind
	Parent         ObjectID // zero/unused for Participant
	TopicID        ObjectID // only meaningful for DataWriter/DataReader
	Representation []byte

	// ConfigChangeCount is the GET_INFO change counter: it increments on
	// every successful CREATE that (re)establishes this object and on
	// every successful WRITE through it.
	ConfigChangeCount uint32
}

// SampleCallback is invoked by the DDS facade for every sample a
// DataReader receives; Session wires one in at creation time so that
// registry never imports session (breaking the cycle noted in §4.3).
type SampleCallback func(objectID ObjectID, requestID uint32, data []byte)

// CreationMode carries the REUSE/REPLACE flags of a CREATE submessage.
type CreationMode struct {
	Reuse   bool
	Replace bool
}
