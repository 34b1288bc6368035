// Package typeregistry is the interface/type registry (spec §4.B): it
// records transferable codecs and interface descriptors, and mechanically
// derives the per-method marshal/unmarshal plan shared by the client proxy
// and the server dispatch loop.
//
// Grounded in the teacher's codec.Codec interface (pluggable
// Encode/Decode/Type, generalized here to a per-type Codec record) and in
// server/service.go's reflection-based method scan, generalized from Go's
// implicit (args, reply) error convention to the declared
// {arg_name,arg_type}*/return_type signature model spec §3 requires.
package typeregistry

import (
	"fmt"
	"sync"

	"ccrpc/status"
)

// Arg describes one declared method argument.
type Arg struct {
	Name string
	Type string
}

// MethodSignature is one method entry in an interface descriptor. Method id
// is the index of this entry within Descriptor.Methods — insertion order is
// part of the wire contract and must never change once published.
type MethodSignature struct {
	Name             string
	Args             []Arg
	ReturnType       string
	NullableReturn   bool
}

// Version is the (major, minor) pair identifying one interface revision.
type Version struct {
	Major uint32
	Minor uint32
}

// Key identifies an interface descriptor by its wire-compatibility triple.
type Key struct {
	Namespace string
	Version   Version
	Name      string
}

// Descriptor is a registered interface: identity plus its ordered method
// list. Two descriptors are wire-compatible iff Key matches and Methods is
// equal element-wise (spec §3).
type Descriptor struct {
	Key     Key
	Methods []MethodSignature
}

// MethodPlan is the resolved codec set for one method: an argument codec
// per declared arg (in declared order) plus the return codec.
type MethodPlan struct {
	MethodID       uint32
	Name           string
	ArgCodecs      []*Codec
	ReturnCodec    *Codec
	NullableReturn bool
}

// Registry holds the two append-only tables described in spec §4.B:
// transferables by type name, and interfaces by (namespace, version, name).
// Reads are lock-free after publication is not literally true here (we use
// an RWMutex for correctness on every platform), but registration is the
// only writer and is expected to happen once at start-up, matching spec §5.
type Registry struct {
	mu            sync.RWMutex
	transferables map[string]Transferable
	interfaces    map[Key]*Descriptor
	plans         map[Key]map[string]*MethodPlan
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		transferables: make(map[string]Transferable),
		interfaces:    make(map[Key]*Descriptor),
		plans:         make(map[Key]map[string]*MethodPlan),
	}
}

// RegisterTransferable records a user type's codec, keyed by its
// fully-qualified type name. Safe to call only before any server using this
// registry starts (spec §3 Lifecycle).
func (r *Registry) RegisterTransferable(t Transferable) error {
	if t.TypeName == "" {
		return fmt.Errorf("typeregistry: transferable must have a TypeName")
	}
	if t.Serialize == nil || t.Deserialize == nil {
		return fmt.Errorf("typeregistry: transferable %s missing serialize/deserialize", t.TypeName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transferables[t.TypeName] = t
	return nil
}

// RegisterInterface records an interface descriptor and resolves every
// method's codec plan eagerly. If any argument or return type is neither
// built-in nor a registered transferable, registration fails with
// ERROR_INVALID (spec §4.B) rather than deferring the failure to dispatch
// time.
func (r *Registry) RegisterInterface(d Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plans := make(map[string]*MethodPlan, len(d.Methods))
	for i, m := range d.Methods {
		argCodecs := make([]*Codec, len(m.Args))
		for j, a := range m.Args {
			c, err := resolve(a.Type, r.transferables)
			if err != nil {
				return status.Invalid("", d.Key.Name+"."+m.Name,
					fmt.Sprintf("argument %s: %v", a.Name, err))
			}
			argCodecs[j] = c
		}
		retCodec, err := resolve(m.ReturnType, r.transferables)
		if err != nil {
			return status.Invalid("", d.Key.Name+"."+m.Name, fmt.Sprintf("return type: %v", err))
		}
		plans[m.Name] = &MethodPlan{
			MethodID:       uint32(i),
			Name:           m.Name,
			ArgCodecs:      argCodecs,
			ReturnCodec:    retCodec,
			NullableReturn: m.Nullable(),
		}
	}

	r.interfaces[d.Key] = &d
	r.plans[d.Key] = plans
	return nil
}

// Nullable reports whether the method's return may be absent.
func (m MethodSignature) Nullable() bool { return m.NullableReturn }

// MethodByName returns the declared signature for name, used to flatten a
// name→value call into the declared positional order (spec §4.B).
func (d *Descriptor) MethodByName(name string) (MethodSignature, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSignature{}, false
}

// Lookup returns the descriptor registered under key, if any.
func (r *Registry) Lookup(key Key) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.interfaces[key]
	return d, ok
}

// PlanByName returns the method plan for a named method of a registered
// interface.
func (r *Registry) PlanByName(key Key, methodName string) (*MethodPlan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.plans[key]
	if !ok {
		return nil, false
	}
	p, ok := byName[methodName]
	return p, ok
}

// PlanByID returns the method plan at the given wire method_id.
func (r *Registry) PlanByID(key Key, methodID uint32) (*MethodPlan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.interfaces[key]
	if !ok || int(methodID) >= len(d.Methods) {
		return nil, false
	}
	byName := r.plans[key]
	p, ok := byName[d.Methods[methodID].Name]
	return p, ok
}

// Equal reports whether two descriptors are wire-compatible: same Key, and
// an element-wise equal method list (spec §3).
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d.Key != other.Key {
		return false
	}
	if len(d.Methods) != len(other.Methods) {
		return false
	}
	for i := range d.Methods {
		if !sameMethod(d.Methods[i], other.Methods[i]) {
			return false
		}
	}
	return true
}

func sameMethod(a, b MethodSignature) bool {
	if a.Name != b.Name || a.ReturnType != b.ReturnType || a.NullableReturn != b.NullableReturn {
		return false
	}
	if len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	return true
}

// presenceBitmapSize is the byte length of a presence bitmap for n
// declared argument positions: one bit per position, rounded up.
func presenceBitmapSize(n int) int {
	return (n + 7) / 8
}

// EncodeArgs catenates the positional argument codecs for plan, prefixed by
// a presence bitmap (one bit per declared position, LSB-first within each
// byte), per spec §4.B. A nil entry in args marks its bit 0 and is skipped
// on the wire entirely; the decoder uses the bitmap, not a run length, to
// know which codec each encoded value belongs to — a missing arg anywhere
// but the trailing position still decodes correctly.
func EncodeArgs(plan *MethodPlan, args []any) (blob []byte, flags byte, err error) {
	if len(args) != len(plan.ArgCodecs) {
		return nil, 0, fmt.Errorf("typeregistry: %s expects %d args, got %d", plan.Name, len(plan.ArgCodecs), len(args))
	}
	bitmap := make([]byte, presenceBitmapSize(len(args)))
	var encoded [][]byte
	missing := false
	for i, a := range args {
		if a == nil {
			missing = true
			continue
		}
		b, encErr := plan.ArgCodecs[i].Encode(a)
		if encErr != nil {
			return nil, 0, fmt.Errorf("typeregistry: encoding arg %d of %s: %w", i, plan.Name, encErr)
		}
		bitmap[i/8] |= 1 << uint(i%8)
		encoded = append(encoded, b)
	}
	out := bitmap
	for _, b := range encoded {
		out = append(out, b...)
	}
	if missing {
		flags = 1
	}
	return out, flags, nil
}

// DecodeArgs reverses EncodeArgs, returning one value per declared argument
// in declared order. A position whose presence bit is 0 decodes to nil
// without consuming wire bytes, regardless of whether later positions are
// present.
func DecodeArgs(plan *MethodPlan, blob []byte) ([]any, error) {
	bitmapSize := presenceBitmapSize(len(plan.ArgCodecs))
	if len(blob) < bitmapSize {
		return nil, fmt.Errorf("typeregistry: truncated presence bitmap")
	}
	bitmap := blob[:bitmapSize]
	rest := blob[bitmapSize:]
	values := make([]any, len(plan.ArgCodecs))
	for i := range plan.ArgCodecs {
		if bitmap[i/8]&(1<<uint(i%8)) == 0 {
			continue
		}
		v, next, err := plan.ArgCodecs[i].Decode(rest)
		if err != nil {
			return nil, fmt.Errorf("typeregistry: decoding arg %d of %s: %w", i, plan.Name, err)
		}
		values[i] = v
		rest = next
	}
	return values, nil
}
