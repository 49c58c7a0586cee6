package request

import "strings"

// Intents are the advisory cache-refresh signals raised by the retry policy.
type Intents struct {
	NameCache            bool
	CollectionRoutingMap bool
	PartitionKeyRange    bool
	AddressCache         bool
}

// Any reports whether any refresh was requested.
func (i Intents) Any() bool {
	return i.NameCache || i.CollectionRoutingMap || i.PartitionKeyRange || i.AddressCache
}

// String lists the requested refreshes, e.g. "name,address".
func (i Intents) String() string {
	var parts []string
	if i.NameCache {
		parts = append(parts, "name")
	}
	if i.CollectionRoutingMap {
		parts = append(parts, "routing_map")
	}
	if i.PartitionKeyRange {
		parts = append(parts, "pk_range")
	}
	if i.AddressCache {
		parts = append(parts, "address")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
