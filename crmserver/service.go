// Grounded in the teacher's server/service.go: reflection scans the
// receiver's exported methods once at registration and rejects anything
// that doesn't fit the expected shape, instead of discovering signature
// mismatches at call time.
package crmserver

import (
	"context"
	"fmt"
	"reflect"

	"ccrpc/typeregistry"
)

// crmMethod is a CRM method bound for reflective invocation. The CRM
// exposes methods of shape:
//
//	func (c *MyCRM) MethodName(ctx context.Context, args []any) (any, error)
//
// which is the generalized form of the teacher's func(args, reply *T) error
// convention — generalized because a CRM's argument list is heterogeneous
// and declared by the interface descriptor, not fixed Go struct types.
type crmMethod struct {
	name string
	fn   reflect.Value
}

var (
	ctxType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsType     = reflect.TypeOf([]any(nil))
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	anyType      = reflect.TypeOf((*any)(nil)).Elem()
)

// bindMethods reflects over crm and returns every method matching the
// expected shape, keyed by name.
func bindMethods(crm any) map[string]crmMethod {
	v := reflect.ValueOf(crm)
	t := v.Type()
	out := make(map[string]crmMethod, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !isCRMMethodShape(v.Method(i).Type()) {
			continue
		}
		out[m.Name] = crmMethod{name: m.Name, fn: v.Method(i)}
	}
	return out
}

func isCRMMethodShape(mt reflect.Type) bool {
	// Method.Type on a bound value includes the receiver as in[0] only for
	// unbound Type() values; v.Method(i).Type() already excludes it.
	if mt.NumIn() != 2 || mt.NumOut() != 2 {
		return false
	}
	if mt.In(0) != ctxType {
		return false
	}
	if mt.In(1) != argsType {
		return false
	}
	if mt.Out(0) != anyType {
		return false
	}
	return mt.Out(1) == errorType
}

// validateAgainstDescriptor fails ERROR_INVALID-worthy registration if the
// CRM is missing a Go method for any of the descriptor's declared methods.
func validateAgainstDescriptor(methods map[string]crmMethod, d *typeregistry.Descriptor) error {
	for _, m := range d.Methods {
		if _, ok := methods[m.Name]; !ok {
			return fmt.Errorf("crmserver: crm_instance has no method %q declared by interface_descriptor", m.Name)
		}
	}
	return nil
}

// invoke calls the bound CRM method, recovering a panic into an error so a
// single bad call can never take down the dispatch goroutine.
func (m crmMethod) invoke(ctx context.Context, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("crmserver: method %s panicked: %v", m.name, r)
		}
	}()
	out := m.fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(args)})
	if errVal := out[1].Interface(); errVal != nil {
		return nil, errVal.(error)
	}
	return out[0].Interface(), nil
}
