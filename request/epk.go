package request

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// EffectivePartitionKey hashes a partition key value onto the range key space. The
// result is fixed-width upper-case hex, so it orders the same way as range bounds.
func EffectivePartitionKey(value string) string {
	return fmt.Sprintf("%08X", murmur3.Sum32([]byte(value)))
}

// WithPartitionKeyValue sets PartitionKey to the effective key of value.
func WithPartitionKeyValue(value string) Option {
	return func(c *Context) {
		c.PartitionKey = EffectivePartitionKey(value)
	}
}
