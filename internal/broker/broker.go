// Package broker is the path-keyed registry of topics and the single
// external entry point ("set_external" in spec.md §4.1) that REST, the
// WebSocket push bus, and the UI arbiter all go through to read or write a
// topic by its string path.
package broker

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/linux-automation/tacd/internal/tacerr"
	"github.com/linux-automation/tacd/internal/topic"
)

// GateFunc returns a non-nil error (conventionally a *tacerr.Error of Kind
// Forbidden) when a write to a topic should currently be rejected, e.g. the
// setup-mode check for gated endpoints.
type GateFunc func() error

// handle type-erases a *topic.Topic[T] behind JSON-shaped operations so the
// broker's registry can hold topics of heterogeneous payload types.
type handle struct {
	path        string
	writable    bool
	binary      bool // true for raw-bytes topics such as display/content
	contentType string
	gate        GateFunc

	getBytes       func() ([]byte, bool)
	setBytes       func([]byte) error
	subscribeBytes func(func([]byte)) *topic.Subscription
}

// Broker is the registry. It is populated once during startup wire-up
// (spec.md §3 "Lifecycles") and never mutated afterwards; all later access
// is read-only lookups plus per-topic publish/subscribe, both of which are
// already safe for concurrent use.
type Broker struct {
	logger  *logrus.Logger
	mu      sync.RWMutex
	handles map[string]*handle
}

// New returns an empty broker.
func New(logger *logrus.Logger) *Broker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broker{logger: logger, handles: make(map[string]*handle)}
}

// RegisterJSON wires a *topic.Topic[T] into the broker at path, to be
// marshalled/unmarshalled as JSON at the external edge. writable controls
// whether SetExternal may publish to it; an optional gate further
// restricts writes (e.g. requiring setup mode).
func RegisterJSON[T any](b *Broker, path string, t *topic.Topic[T], writable bool, gate GateFunc) {
	h := &handle{
		path:        path,
		writable:    writable,
		contentType: "application/json",
		gate:        gate,
		getBytes: func() ([]byte, bool) {
			v, _, ok := t.Get()
			if !ok {
				return nil, false
			}
			data, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			return data, true
		},
		setBytes: func(data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return tacerr.Wrap(tacerr.BadRequest, fmt.Sprintf("decoding body for %s", path), err)
			}
			t.Publish(v)
			return nil
		},
		subscribeBytes: func(cb func([]byte)) *topic.Subscription {
			return t.Subscribe(func(_, _ uint64, v T) {
				data, err := json.Marshal(v)
				if err != nil {
					return
				}
				cb(data)
			})
		},
	}
	b.add(h)
}

// RegisterJSONRW wires a path whose retained (GET) value and externally
// writable (PUT) value are different types, e.g. /v1/dut/powered where
// GET returns the supervisor's DutPwrStatus but PUT only accepts the
// narrower DutPwrRequest the supervisor reduces to a transition. reader
// backs GET and Subscribe; writer receives decoded PUT bodies.
func RegisterJSONRW[R, W any](b *Broker, path string, reader *topic.Topic[R], writer *topic.Topic[W], gate GateFunc) {
	h := &handle{
		path:        path,
		writable:    true,
		contentType: "application/json",
		gate:        gate,
		getBytes: func() ([]byte, bool) {
			v, _, ok := reader.Get()
			if !ok {
				return nil, false
			}
			data, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			return data, true
		},
		setBytes: func(data []byte) error {
			var v W
			if err := json.Unmarshal(data, &v); err != nil {
				return tacerr.Wrap(tacerr.BadRequest, fmt.Sprintf("decoding body for %s", path), err)
			}
			writer.Publish(v)
			return nil
		},
		subscribeBytes: func(cb func([]byte)) *topic.Subscription {
			return reader.Subscribe(func(_, _ uint64, v R) {
				data, err := json.Marshal(v)
				if err != nil {
					return
				}
				cb(data)
			})
		},
	}
	b.add(h)
}

// RegisterBinary wires a *topic.Topic[[]byte] whose retained value is
// served as-is (e.g. image/png) rather than JSON-encoded. It is never
// externally writable.
func RegisterBinary(b *Broker, path, contentType string, t *topic.Topic[[]byte]) {
	h := &handle{
		path:        path,
		writable:    false,
		binary:      true,
		contentType: contentType,
		getBytes: func() ([]byte, bool) {
			v, _, ok := t.Get()
			return v, ok
		},
		subscribeBytes: func(cb func([]byte)) *topic.Subscription {
			return t.Subscribe(func(_, _ uint64, v []byte) { cb(v) })
		},
	}
	b.add(h)
}

func (b *Broker) add(h *handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handles[h.path]; exists {
		panic(fmt.Sprintf("broker: duplicate topic registration for %s", h.path))
	}
	b.handles[h.path] = h
}

func (b *Broker) lookup(path string) (*handle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handles[path]
	if !ok {
		return nil, tacerr.New(tacerr.NotFound, fmt.Sprintf("no such topic: %s", path))
	}
	return h, nil
}

// Get returns the retained value's wire bytes, its content type, and
// whether a value has ever been published.
func (b *Broker) Get(path string) (data []byte, contentType string, err error) {
	h, err := b.lookup(path)
	if err != nil {
		return nil, "", err
	}
	data, ok := h.getBytes()
	if !ok {
		return nil, "", tacerr.New(tacerr.NotFound, fmt.Sprintf("%s has no retained value yet", path))
	}
	return data, h.contentType, nil
}

// SetExternal decodes data according to the topic's declared codec and
// publishes it, after checking that the topic is writable and that any
// gate currently permits the write.
func (b *Broker) SetExternal(path string, data []byte) error {
	h, err := b.lookup(path)
	if err != nil {
		return err
	}
	if !h.writable {
		return tacerr.New(tacerr.Forbidden, fmt.Sprintf("%s is read-only", path))
	}
	if h.gate != nil {
		if err := h.gate(); err != nil {
			return err
		}
	}
	return h.setBytes(data)
}

// Subscribe delivers data (already wire-encoded) to cb for every future
// publish to path, including an immediate delivery of the retained value
// if one exists, mirroring topic.Subscribe's contract at the broker level.
func (b *Broker) Subscribe(path string, cb func(data []byte)) (*topic.Subscription, error) {
	h, err := b.lookup(path)
	if err != nil {
		return nil, err
	}
	return h.subscribeBytes(cb), nil
}

// Paths returns every registered topic path, sorted, for generating the
// REST routes and the per-path metrics subscriptions.
func (b *Broker) Paths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	paths := make([]string, 0, len(b.handles))
	for p := range b.handles {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Writable reports whether path is externally writable; used by transport
// layers that want to reject writes before even reading the request body.
func (b *Broker) Writable(path string) (bool, error) {
	h, err := b.lookup(path)
	if err != nil {
		return false, err
	}
	return h.writable, nil
}

// NewToken mints a unique identifier for a subscription/connection, reused
// by the WebSocket hub for client IDs.
func NewToken() string {
	return uuid.NewString()
}
