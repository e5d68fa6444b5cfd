package peerstore

import "github.com/cockroachdb/pebble"

// peerPrefix + scope + "/" + node_id -> RLP(storedPeer), matching spec.md §6
// "peers — key = <scope>/<node_id>". Mirrors core/chainstore/schema.go's
// single-prefix-per-tree convention; the Peer Store is its own pebble
// instance (see Open), so the prefix mainly exists to keep the key format
// consistent with the rest of the codebase rather than to share a keyspace.
var peerPrefix = []byte("p")

func peerKey(scope, nodeID string) []byte {
	key := make([]byte, 0, len(peerPrefix)+len(scope)+1+len(nodeID))
	key = append(key, peerPrefix...)
	key = append(key, scope...)
	key = append(key, '/')
	key = append(key, nodeID...)
	return key
}

func scopePrefix(scope string) []byte {
	key := make([]byte, 0, len(peerPrefix)+len(scope)+1)
	key = append(key, peerPrefix...)
	key = append(key, scope...)
	key = append(key, '/')
	return key
}

// prefixUpperBound returns the smallest key greater than every key
// beginning with prefix, for a pebble.IterOptions.UpperBound — identical in
// spirit to core/chainstore/iter.go's helper of the same name.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte{}, prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return err == pebble.ErrNotFound
}
