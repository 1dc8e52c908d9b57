package engine

import (
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-gateway/internal/core"
)

// Kind identifies one synthesis engine type.
type Kind string

// The three engine kinds served by the gateway.
const (
	KindEdgeTTS  Kind = "edge-tts"
	KindIndexTTS Kind = "index-tts2"
	KindCoquiTTS Kind = "coqui-tts"
)

// Builder constructs an engine instance. It is invoked at most once per
// process lifetime per kind; any error it returns is recorded as the
// permanent unavailability reason.
type Builder func() (core.Engine, error)

type entryState int

const (
	stateUninitialized entryState = iota
	stateReady
	stateFailed
)

// entry holds one engine singleton and its construction outcome. The entry
// mutex guards construction so concurrent first-use performs exactly one
// attempt; the registry mutex only guards the map itself.
type entry struct {
	mu      sync.Mutex
	builder Builder
	state   entryState
	engine  core.Engine
	reason  error
}

// Registry owns the lazy per-kind engine singletons. A kind whose builder
// failed stays failed for the process lifetime; there is no retry path.
type Registry struct {
	mu      sync.Mutex
	log     *logger.Logger
	entries map[Kind]*entry
	order   []Kind
}

// NewRegistry creates an empty engine registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:     log,
		entries: make(map[Kind]*entry),
	}
}

// Register adds a builder for an engine kind. Registration order is
// preserved for listings. Re-registering a kind replaces its builder only if
// construction has not been attempted yet.
func (r *Registry) Register(kind Kind, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, found := r.entries[kind]
	if found {
		existing.mu.Lock()
		if existing.state == stateUninitialized {
			existing.builder = builder
		}
		existing.mu.Unlock()

		return
	}

	r.entries[kind] = &entry{builder: builder}
	r.order = append(r.order, kind)
}

// Get returns the engine singleton for a kind, constructing it on first use.
// A kind whose construction failed, or whose instance reports its model as
// unavailable, fails with ErrEngineUnavailable.
func (r *Registry) Get(kind Kind) (core.Engine, error) {
	ent, err := r.lookup(kind)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	r.constructLocked(kind, ent)

	if ent.state == stateFailed {
		return nil, newEngineUnavailableError(kind, ent.reason)
	}

	if !ent.engine.Available() {
		return nil, newEngineUnavailableError(kind, nil)
	}

	return ent.engine, nil
}

// Available reports whether an engine's model loaded. The first call for a
// kind triggers construction; later calls only read the recorded outcome.
func (r *Registry) Available(kind Kind) bool {
	ent, err := r.lookup(kind)
	if err != nil {
		return false
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	r.constructLocked(kind, ent)

	return ent.state == stateReady && ent.engine.Available()
}

// Loaded reports whether a construction attempt has been made for a kind,
// regardless of its outcome. Health reporting uses this to distinguish
// never-used engines from failed ones without forcing construction.
func (r *Registry) Loaded(kind Kind) bool {
	ent, err := r.lookup(kind)
	if err != nil {
		return false
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	return ent.state != stateUninitialized
}

// Kinds returns the registered engine kinds in registration order.
func (r *Registry) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]Kind, len(r.order))
	copy(kinds, r.order)

	return kinds
}

// Describe computes the discovery listing for every registered engine.
// Availability is evaluated per call, constructing lazily where needed.
func (r *Registry) Describe() []core.EngineDescriptor {
	descriptors := make([]core.EngineDescriptor, 0, len(r.Kinds()))

	for _, kind := range r.Kinds() {
		ent, err := r.lookup(kind)
		if err != nil {
			continue
		}

		ent.mu.Lock()
		r.constructLocked(kind, ent)

		if ent.state == stateReady {
			descriptors = append(descriptors, ent.engine.Describe())
		} else {
			descriptors = append(descriptors, descriptorFor(kind, false))
		}
		ent.mu.Unlock()
	}

	return descriptors
}

func (r *Registry) lookup(kind Kind) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, found := r.entries[kind]
	if !found {
		return nil, newEngineUnavailableError(kind, ErrUnknownEngine)
	}

	return ent, nil
}

// constructLocked runs the builder exactly once. The caller holds ent.mu.
func (r *Registry) constructLocked(kind Kind, ent *entry) {
	if ent.state != stateUninitialized {
		return
	}

	r.log.Info("Loading engine %s...", kind)

	instance, err := ent.builder()
	if err != nil {
		ent.state = stateFailed
		ent.reason = err
		r.log.Warn("Engine %s unavailable: %v", kind, err)

		return
	}

	ent.state = stateReady
	ent.engine = instance
	r.log.Info("Engine %s ready", kind)
}

// descriptorFor returns the static discovery metadata for a kind with the
// given availability flag. Ready engines report their own descriptor instead.
func descriptorFor(kind Kind, available bool) core.EngineDescriptor {
	switch kind {
	case KindEdgeTTS:
		return core.EngineDescriptor{
			ID:          string(KindEdgeTTS),
			Name:        "Edge-TTS",
			Description: "300+ pre-built neural voices",
			Features:    []string{"Multiple languages", "Fast synthesis", "No setup required"},
			Available:   available,
		}
	case KindIndexTTS:
		return core.EngineDescriptor{
			ID:          string(KindIndexTTS),
			Name:        "Index-TTS2",
			Description: "Advanced voice cloning and emotional synthesis",
			Features:    []string{"Voice cloning", "Emotional control", "High quality"},
			Available:   available,
		}
	case KindCoquiTTS:
		return core.EngineDescriptor{
			ID:          string(KindCoquiTTS),
			Name:        "Coqui TTS",
			Description: "Multilingual voice cloning (1100+ languages)",
			Features:    []string{"Voice cloning", "Voice conversion", "Multilingual"},
			Available:   available,
		}
	default:
		return core.EngineDescriptor{
			ID:        string(kind),
			Name:      string(kind),
			Available: available,
		}
	}
}
