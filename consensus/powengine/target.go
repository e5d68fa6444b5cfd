package powengine

import "github.com/holiman/uint256"

// maxUint256 is 2^256 - 1.
var maxUint256 = func() *uint256.Int {
	v := new(uint256.Int)
	v.SetAllOne()
	return v
}()

// Target returns the maximum digest value (interpreted as a big-endian
// 256-bit integer) that satisfies difficulty: target = floor((2^256-1) /
// difficulty) (spec.md §4.2). difficulty == 0 is rejected by validators
// before mining/verification is attempted; Target treats it as the easiest
// possible target rather than dividing by zero.
func Target(difficulty uint64) *uint256.Int {
	if difficulty == 0 {
		return new(uint256.Int).Set(maxUint256)
	}
	d := uint256.NewInt(difficulty)
	return new(uint256.Int).Div(maxUint256, d)
}

// MeetsTarget reports whether digest, read as a big-endian 256-bit integer,
// is at or below target.
func MeetsTarget(digest [32]byte, target *uint256.Int) bool {
	var v uint256.Int
	v.SetBytes(digest[:])
	return v.Cmp(target) <= 0
}
