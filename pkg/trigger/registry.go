package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Marshalled is the portable form of a trigger: its kind plus an opaque
// state payload understood by the codec registered for that kind.
type Marshalled struct {
	Kind  string          `json:"kind"`
	State json.RawMessage `json:"state"`
}

// Codec encodes and decodes one trigger kind.
type Codec struct {
	Encode func(Trigger) (json.RawMessage, error)
	Decode func(json.RawMessage) (Trigger, error)
}

var codecs = struct {
	mu sync.RWMutex
	m  map[string]Codec
}{m: map[string]Codec{}}

// RegisterCodec makes a trigger kind marshallable. The kinds shipped with
// this package register themselves from init; external trigger types can
// do the same. Registering a kind twice panics.
func RegisterCodec(kind string, c Codec) {
	if kind == "" || c.Encode == nil || c.Decode == nil {
		panic("trigger: RegisterCodec requires a kind and both codec functions")
	}
	codecs.mu.Lock()
	defer codecs.mu.Unlock()
	if _, dup := codecs.m[kind]; dup {
		panic("trigger: codec already registered for kind " + kind)
	}
	codecs.m[kind] = c
}

// Kinds returns the registered trigger kinds, sorted.
func Kinds() []string {
	codecs.mu.RLock()
	out := make([]string, 0, len(codecs.m))
	for k := range codecs.m {
		out = append(out, k)
	}
	codecs.mu.RUnlock()
	sort.Strings(out)
	return out
}

func lookupCodec(kind string) (Codec, error) {
	codecs.mu.RLock()
	defer codecs.mu.RUnlock()
	c, ok := codecs.m[kind]
	if !ok {
		return Codec{}, fmt.Errorf("trigger: no codec registered for kind %q", kind)
	}
	return c, nil
}

// Marshal encodes t through the codec registered for t.Kind().
func Marshal(t Trigger) (Marshalled, error) {
	if t == nil {
		return Marshalled{}, errors.New("trigger: cannot marshal nil trigger")
	}
	c, err := lookupCodec(t.Kind())
	if err != nil {
		return Marshalled{}, err
	}
	state, err := c.Encode(t)
	if err != nil {
		return Marshalled{}, err
	}
	return Marshalled{Kind: t.Kind(), State: state}, nil
}

// Unmarshal rebuilds a trigger from its marshalled form.
func Unmarshal(m Marshalled) (Trigger, error) {
	c, err := lookupCodec(m.Kind)
	if err != nil {
		return nil, err
	}
	return c.Decode(m.State)
}

// requireVersion guards state decoding against snapshots written by a
// different format revision. Both versions end up in the error so a
// mismatch is diagnosable from logs alone; no partial restore happens.
func requireVersion(kind string, expected, actual int) error {
	if expected != actual {
		return fmt.Errorf("trigger: cannot restore %s state: got version %d, expected %d", kind, actual, expected)
	}
	return nil
}
