package policy

import "strings"

// PolicyKey identifies a logical store operation, e.g. "docs.read".
type PolicyKey struct {
	Namespace string
	Name      string
}

// ParseKey parses "namespace.name" into a PolicyKey.
//
// Only the first dot separates namespace and name; surrounding whitespace is trimmed.
func ParseKey(s string) PolicyKey {
	s = strings.TrimSpace(s)
	if s == "" {
		return PolicyKey{}
	}
	ns, name, ok := strings.Cut(s, ".")
	if !ok {
		return PolicyKey{Name: s}
	}
	ns = strings.TrimSpace(ns)
	name = strings.TrimSpace(name)
	if ns == "" {
		return PolicyKey{Name: name}
	}
	if name == "" {
		return PolicyKey{Name: s}
	}
	return PolicyKey{Namespace: ns, Name: name}
}

func (k PolicyKey) String() string {
	switch {
	case k.Namespace == "":
		return k.Name
	case k.Name == "":
		return k.Namespace
	default:
		return k.Namespace + "." + k.Name
	}
}
