// Package registry is the whitelist of device operations a remote caller may
// reach. Anything not named here is refused before the device is touched.
//
// A Registry is built once and never changes, so it is shared freely between
// connection goroutines without locking.
package registry

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"sdr-rpc/device"
)

var (
	// ErrPermissionDenied is returned for names that are not whitelisted.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidArgument is returned when an argument matches none of the
	// types a method accepts.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Result says how a method's return value travels back to the caller.
type Result int

const (
	ResultNone   Result = iota // bare success, no payload
	ResultInline               // JSON value in the response header
	ResultBulk                 // raw bytes after the header
)

// Invoker runs a whitelisted operation against a device. arg is the value
// produced by the first ArgType that accepted the wire argument, or nil for
// methods that take none. ResultBulk invokers must return []byte.
type Invoker func(dev device.Device, arg any) (any, error)

// Method is one whitelisted operation.
type Method struct {
	Name   string
	Args   []ArgType // tried in order; empty means no argument
	Result Result
	Invoke Invoker
}

// Coerce converts a wire argument to the Go value Invoke expects.
func (m *Method) Coerce(raw json.RawMessage) (any, error) {
	if len(m.Args) == 0 {
		if isNull(raw) {
			return nil, nil
		}
		return nil, errors.Wrapf(ErrInvalidArgument, "%s takes no argument, got %s", m.Name, raw)
	}
	names := make([]string, 0, len(m.Args))
	for _, t := range m.Args {
		if v, err := t.Parse(raw); err == nil {
			return v, nil
		}
		names = append(names, t.Name())
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "%s: %s is not one of [%s]", m.Name, printable(raw), strings.Join(names, ", "))
}

// Property maps a property name onto a getter and a setter method.
type Property struct {
	Name   string
	Getter string
	Setter string
}

// Registry is an immutable set of methods and properties.
type Registry struct {
	methods map[string]*Method
	props   map[string]Property
}

// New validates and freezes the given tables. Every property must name an
// existing getter that takes no argument and an existing setter.
func New(methods []Method, props []Property) (*Registry, error) {
	r := &Registry{
		methods: make(map[string]*Method, len(methods)),
		props:   make(map[string]Property, len(props)),
	}
	for i := range methods {
		m := methods[i]
		if m.Name == "" || m.Invoke == nil {
			return nil, errors.Errorf("registry: method %d is missing a name or invoker", i)
		}
		if _, dup := r.methods[m.Name]; dup {
			return nil, errors.Errorf("registry: duplicate method %q", m.Name)
		}
		m.Args = append([]ArgType(nil), m.Args...)
		r.methods[m.Name] = &m
	}
	for _, p := range props {
		if _, dup := r.props[p.Name]; dup {
			return nil, errors.Errorf("registry: duplicate property %q", p.Name)
		}
		getter, ok := r.methods[p.Getter]
		if !ok {
			return nil, errors.Errorf("registry: property %q: unknown getter %q", p.Name, p.Getter)
		}
		if len(getter.Args) != 0 || getter.Result != ResultInline {
			return nil, errors.Errorf("registry: property %q: getter %q must take no argument and return a value", p.Name, p.Getter)
		}
		if _, ok := r.methods[p.Setter]; !ok {
			return nil, errors.Errorf("registry: property %q: unknown setter %q", p.Name, p.Setter)
		}
		r.props[p.Name] = p
	}
	return r, nil
}

// IsMethodAllowed reports whether name is a whitelisted method.
func (r *Registry) IsMethodAllowed(name string) bool {
	_, ok := r.methods[name]
	return ok
}

// IsPropertyAllowed reports whether name is a whitelisted property or alias.
func (r *Registry) IsPropertyAllowed(name string) bool {
	_, ok := r.props[name]
	return ok
}

// Method returns the whitelisted method called name.
func (r *Registry) Method(name string) (*Method, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, errors.Wrapf(ErrPermissionDenied, "method %q", name)
	}
	return m, nil
}

// ResolveProperty returns the getter and setter behind a property name.
func (r *Registry) ResolveProperty(name string) (getter, setter *Method, err error) {
	p, ok := r.props[name]
	if !ok {
		return nil, nil, errors.Wrapf(ErrPermissionDenied, "property %q", name)
	}
	return r.methods[p.Getter], r.methods[p.Setter], nil
}

// Methods returns the whitelisted method names, sorted.
func (r *Registry) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Properties returns the whitelisted property names, sorted.
func (r *Registry) Properties() []string {
	names := make([]string, 0, len(r.props))
	for name := range r.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printable(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "<none>"
	}
	if len(raw) > 64 {
		return string(raw[:64]) + "..."
	}
	return string(raw)
}
