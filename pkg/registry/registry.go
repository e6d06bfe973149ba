package registry

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/xrce-go/agent/pkg/wire"
)

// ClientObjectID is the reserved sentinel identifying the session's own
// CLIENT representation rather than a proxy object; DELETE addressed to
// it tears down every object the session owns (§4.3).
const ClientObjectID = ObjectID(wire.ObjectIDClient)

// Registry is the per-session ObjectRegistry: the ObjectID -> Object map
// plus the parent -> children edges used for cascade delete (§4.3),
// replacing the original's owning-pointer object graph.
type Registry struct {
	mu       sync.Mutex
	facade   Facade
	objects  map[ObjectID]Object
	children map[ObjectID][]ObjectID
	log      *logrus.Entry
}

// New creates an empty Registry bound to facade.
func New(facade Facade, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		facade:   facade,
		objects:  make(map[ObjectID]Object),
		children: make(map[ObjectID][]ObjectID),
		log:      log,
	}
}

// Lookup returns the object stored at id, if any.
func (r *Registry) Lookup(id ObjectID) (Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	return obj, ok
}

// Create implements §4.3's 4-cell reuse x replace decision table plus
// the per-Kind parent/type validation rules. cb is only consulted when
// kind is KindDataReader.
func (r *Registry) Create(id, parent ObjectID, kind Kind, repr []byte, mode CreationMode, cb SampleCallback) wire.StatusCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.objects[id]

	switch {
	case !exists:
		return r.create(id, parent, kind, repr, cb)

	case !mode.Reuse && !mode.Replace:
		return wire.StatusErrAlreadyExists

	case !mode.Reuse && mode.Replace:
		r.destroyLocked(id)
		status := r.create(id, parent, kind, repr, cb)
		if !status.IsOK() {
			return wire.StatusErrDDSError
		}
		return status

	case mode.Reuse && !mode.Replace:
		if sameObject(existing, parent, kind, repr) {
			return wire.StatusOKMatched
		}
		return wire.StatusErrMismatch

	default: // Reuse && Replace
		if sameObject(existing, parent, kind, repr) {
			return wire.StatusOKMatched
		}
		r.destroyLocked(id)
		return r.create(id, parent, kind, repr, cb)
	}
}

func sameObject(existing Object, parent ObjectID, kind Kind, repr []byte) bool {
	return existing.Kind == kind &&
		existing.Parent == parent &&
		reflect.DeepEqual(existing.Representation, repr)
}

// create validates the parent/type rule for kind, calls into the
// facade, and on success records the object and its parent edge. It
// assumes r.mu is held.
func (r *Registry) create(id, parent ObjectID, kind Kind, repr []byte, cb SampleCallback) wire.StatusCode {
	switch kind {
	case KindParticipant:
		if err := r.facade.CreateParticipant(id, repr); err != nil {
			r.log.WithError(err).WithField("object", id).Warn("create participant failed")
			return wire.StatusErrDDSError
		}

	case KindTopic:
		p, ok := r.requireKind(parent, KindParticipant)
		if !ok {
			return wire.StatusErrUnknownReference
		}
		if err := r.facade.CreateTopic(id, p.ID, repr); err != nil {
			return wire.StatusErrDDSError
		}

	case KindPublisher:
		p, ok := r.requireKind(parent, KindParticipant)
		if !ok {
			return wire.StatusErrUnknownReference
		}
		if err := r.facade.CreatePublisher(id, p.ID); err != nil {
			return wire.StatusErrDDSError
		}

	case KindSubscriber:
		p, ok := r.requireKind(parent, KindParticipant)
		if !ok {
			return wire.StatusErrUnknownReference
		}
		if err := r.facade.CreateSubscriber(id, p.ID); err != nil {
			return wire.StatusErrDDSError
		}

	case KindDataWriter:
		pub, ok := r.requireKind(parent, KindPublisher)
		if !ok {
			return wire.StatusErrUnknownReference
		}
		topic, status := r.resolveTopic(repr)
		if status != wire.StatusOK {
			return status
		}
		if err := r.facade.CreateWriter(id, pub.ID, topic, repr); err != nil {
			return wire.StatusErrDDSError
		}
		r.storeLocked(Object{ID: id, Kind: kind, Parent: parent, TopicID: topic, Representation: repr})
		return wire.StatusOK

	case KindDataReader:
		sub, ok := r.requireKind(parent, KindSubscriber)
		if !ok {
			return wire.StatusErrUnknownReference
		}
		topic, status := r.resolveTopic(repr)
		if status != wire.StatusOK {
			return status
		}
		if err := r.facade.CreateReader(id, sub.ID, topic, repr, cb); err != nil {
			return wire.StatusErrDDSError
		}
		r.storeLocked(Object{ID: id, Kind: kind, Parent: parent, TopicID: topic, Representation: repr})
		return wire.StatusOK

	default:
		return wire.StatusErrInvalidData
	}

	r.storeLocked(Object{ID: id, Kind: kind, Parent: parent, Representation: repr})
	return wire.StatusOK
}

// resolveTopic looks up the TOPIC_ID a DataWriter/DataReader representation
// references. The representation format itself is the DDS entity QoS blob
// (§3); the topic reference is carried as its first two bytes, little
// endian, per the wire layout the original ProxyClient relies on.
func (r *Registry) resolveTopic(repr []byte) (ObjectID, wire.StatusCode) {
	if len(repr) < 2 {
		return 0, wire.StatusErrInvalidData
	}
	topicID := ObjectID(uint16(repr[0]) | uint16(repr[1])<<8)
	if _, ok := r.requireKind(topicID, KindTopic); !ok {
		return 0, wire.StatusErrUnknownReference
	}
	return topicID, wire.StatusOK
}

func (r *Registry) requireKind(id ObjectID, kind Kind) (Object, bool) {
	obj, ok := r.objects[id]
	if !ok || obj.Kind != kind {
		return Object{}, false
	}
	return obj, true
}

func (r *Registry) storeLocked(obj Object) {
	obj.ConfigChangeCount = r.objects[obj.ID].ConfigChangeCount + 1
	r.objects[obj.ID] = obj
	if obj.Kind != KindParticipant {
		r.children[obj.Parent] = append(r.children[obj.Parent], obj.ID)
	}
	if obj.Kind == KindDataWriter || obj.Kind == KindDataReader {
		r.children[obj.TopicID] = append(r.children[obj.TopicID], obj.ID)
	}
}

// Delete removes id and cascades to every descendant, deepest first, per
// §4.3/P6. id == ClientObjectID tears down every object owned by the
// session.
func (r *Registry) Delete(id ObjectID) wire.StatusCode {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == ClientObjectID {
		for objID := range r.objects {
			r.destroyLocked(objID)
		}
		return wire.StatusOK
	}

	if _, ok := r.objects[id]; !ok {
		return wire.StatusErrUnknownReference
	}
	r.destroyLocked(id)
	return wire.StatusOK
}

// destroyLocked walks the children graph depth first and destroys every
// descendant before id itself, so a child never outlives the parent it
// references. Assumes r.mu is held.
func (r *Registry) destroyLocked(id ObjectID) {
	for _, child := range r.children[id] {
		if _, ok := r.objects[child]; ok {
			r.destroyLocked(child)
		}
	}
	delete(r.children, id)

	obj, ok := r.objects[id]
	if !ok {
		return
	}
	obj.ConfigChangeCount++
	r.objects[id] = obj

	if err := r.facade.Destroy(id); err != nil {
		r.log.WithError(err).WithField("object", id).Warn("facade destroy failed")
	}
	delete(r.objects, id)
}

// Write routes a WRITE_DATA payload to the DataWriter at id.
func (r *Registry) Write(id ObjectID, data []byte) wire.StatusCode {
	r.mu.Lock()
	obj, ok := r.objects[id]
	r.mu.Unlock()

	if !ok || obj.Kind != KindDataWriter {
		return wire.StatusErrUnknownReference
	}
	if err := r.facade.Write(id, data); err != nil {
		return wire.StatusErrDDSError
	}

	r.mu.Lock()
	if obj, ok := r.objects[id]; ok {
		obj.ConfigChangeCount++
		r.objects[id] = obj
	}
	r.mu.Unlock()

	return wire.StatusOK
}

// Read routes a READ_DATA request to the DataReader at id; delivery of
// the resulting samples happens asynchronously through the
// SampleCallback supplied at creation time.
func (r *Registry) Read(id ObjectID, maxSamples uint16) wire.StatusCode {
	r.mu.Lock()
	obj, ok := r.objects[id]
	r.mu.Unlock()

	if !ok || obj.Kind != KindDataReader {
		return wire.StatusErrUnknownReference
	}
	if err := r.facade.Read(id, maxSamples); err != nil {
		return wire.StatusErrDDSError
	}
	return wire.StatusOK
}

// Info reports the GET_INFO fields for id.
func (r *Registry) Info(id ObjectID) (Object, bool) {
	return r.Lookup(id)
}
