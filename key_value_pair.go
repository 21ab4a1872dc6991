package radargun

// KeyValuePair is a generic key/value tuple used across the cache and log-value packages.
type KeyValuePair[TK any, TV any] struct {
	// Key is the key part in the pair.
	Key TK
	// Value is the value part in the pair.
	Value TV
}
