package gameboot

import "sync"

// ScopeName is the name of the scope every Loader builds for the subsystems it starts.
const ScopeName = "[Services]"

// child is a named value attached to a Scope.
type child struct {
	name  string
	value any
}

// Scope is the container that subsystems attach to while the Loader starts them. A Scope lives for as long as the
// process does; nothing is ever detached from it.
type Scope struct {
	sync.RWMutex

	name     string
	children []child
}

func newScope(name string) *Scope {
	return &Scope{name: name}
}

// Name returns the name of the scope.
func (s *Scope) Name() string {
	return s.name
}

// Attach adds value to the scope under the given name. Attaching a name twice replaces the earlier value but keeps its
// position.
func (s *Scope) Attach(name string, value any) {
	s.Lock()
	defer s.Unlock()

	for i := range s.children {
		if s.children[i].name == name {
			s.children[i].value = value
			return
		}
	}
	s.children = append(s.children, child{name: name, value: value})
}

// Lookup returns the value attached under name.
func (s *Scope) Lookup(name string) (any, bool) {
	s.RLock()
	defer s.RUnlock()

	for _, c := range s.children {
		if c.name == name {
			return c.value, true
		}
	}
	return nil, false
}

// Names returns the names of every attached value, in the order they were attached.
func (s *Scope) Names() []string {
	s.RLock()
	defer s.RUnlock()

	names := make([]string, len(s.children))
	for i, c := range s.children {
		names[i] = c.name
	}
	return names
}
