package engine_util

// Column families of the datastore. Engines with a flat keyspace emulate
// them by prefixing every key with "<cf>_".
const (
	// CfEntity holds serialized entities keyed by (app, namespace, kind, path).
	CfEntity = "entity"
	// CfCounter holds the id allocator counter cell of every (app, kind).
	CfCounter = "counter"
)

var CFs = [2]string{CfEntity, CfCounter}

func cfPrefix(cf string) []byte {
	return []byte(cf + "_")
}

func KeyWithCF(cf string, key []byte) []byte {
	return append(cfPrefix(cf), key...)
}
