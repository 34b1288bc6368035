// Package bridge implements the registration-adapter contract of spec
// §4.H: given a container of component-decorated functions, enumerate the
// ones declaring a CRM address parameter and publish a tool handle for
// each — {Name, ArgSchema, AddressParam} — that an external bridge (an
// MCP server, for instance) can use to expose them. The concrete adapter
// that speaks a specific bridge protocol is out of scope (spec
// Non-goals); this package only defines and implements the contract any
// such adapter would sit behind.
//
// Grounded in the teacher's registry.Registry interface (a narrow,
// adapter-shaped contract the concrete etcd implementation sits behind,
// with callers depending only on the interface) — ToolHandle here plays
// the equivalent role for bridge adapters instead of service registries.
package bridge

import (
	"sort"

	"ccrpc/component"
)

// ToolHandle is what a registration adapter publishes for one
// component-decorated function.
type ToolHandle struct {
	Name         string
	ArgSchema    map[string]string
	AddressParam string
}

// Adapter is the contract a concrete bridge implementation (e.g. an MCP
// server) must satisfy: given the tool handles this process exposes,
// publish them however that bridge's protocol requires.
type Adapter interface {
	Publish(handles []ToolHandle) error
}

// Enumerate turns a container of decorated functions into the tool
// handles an Adapter should publish, in a stable name-sorted order so
// repeated enumeration of the same container is deterministic.
func Enumerate(container map[string]component.Decorated) []ToolHandle {
	handles := make([]ToolHandle, 0, len(container))
	for _, d := range container {
		handles = append(handles, ToolHandle{
			Name:         d.Name,
			ArgSchema:    d.ArgSchema,
			AddressParam: d.AddressParam,
		})
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Name < handles[j].Name })
	return handles
}

// Register enumerates container and hands the resulting tool handles to
// adapter. Returns the handles published, so a caller can log or inspect
// them without re-deriving the enumeration.
func Register(container map[string]component.Decorated, adapter Adapter) ([]ToolHandle, error) {
	handles := Enumerate(container)
	if err := adapter.Publish(handles); err != nil {
		return nil, err
	}
	return handles, nil
}
