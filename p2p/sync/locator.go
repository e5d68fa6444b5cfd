package sync

import (
	"github.com/vision-project/vision-node/core/chainstore"
	"github.com/vision-project/vision-node/internal/chaintypes"
)

// locatorLinearSpan is how many immediate ancestors the locator includes at
// step 1 before the spacing starts doubling (spec.md §4.12 step 1: "the
// local tip and an exponentially spaced sequence of ancestor hashes").
const locatorLinearSpan = 10

// BuildLocator returns the local tip's hash followed by an exponentially
// spaced sequence of canonical ancestor hashes, always ending with genesis.
// A remote peer walks this list to find the highest hash it recognizes,
// which bounds how far back a Headers response needs to start.
func BuildLocator(store *chainstore.Store, tip *chaintypes.Block) ([]chaintypes.Hash, error) {
	locator := []chaintypes.Hash{tip.ID}
	number := tip.Header.Number
	step := uint64(1)

	for number > 0 {
		if number < step {
			number = 0
		} else {
			number -= step
		}
		hash, ok, err := store.ReadCanonicalHash(number)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		locator = append(locator, hash)
		if len(locator) > locatorLinearSpan {
			step *= 2
		}
		if number == 0 {
			break
		}
	}
	return locator, nil
}
