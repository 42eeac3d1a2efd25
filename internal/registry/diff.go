package registry

import "github.com/lido-go/registry-reconciler/internal/config"

// compareMeta is the cheap fast-path check for "nothing mutated" (§4.6).
func compareMeta(prev, curr *Meta) bool {
	if prev == nil {
		return false
	}
	return prev.KeysOpIndex == curr.KeysOpIndex && prev.BlockHash == curr.BlockHash
}

// compareOperator is field-wise equality of all operator columns (§4.6).
// A nil prev always compares unequal.
func compareOperator(prev, curr *Operator) bool {
	if prev == nil {
		return false
	}
	return *prev == *curr
}

// getToIndex picks the upper bound of the key range to refetch for curr,
// according to the module's variant (§4.6). The key-mirror variant refetches
// everything up to the advertised total; the validator-mirror variant
// refetches only used keys.
func getToIndex(curr *Operator, variant config.Variant) uint32 {
	if variant == config.VariantValidators {
		return uint32(curr.UsedSigningKeys)
	}
	return uint32(curr.TotalSigningKeys)
}

// getFromIndex picks the lower bound of the key range to refetch (§4.6). If
// the operator is unchanged, the immutable prefix [0, prev.usedSigningKeys)
// is skipped. If that would produce from > to (a testnet contract can
// shrink usedSigningKeys), from is clamped back to 0.
func getFromIndex(prev, curr *Operator, to uint32) uint32 {
	var from uint32
	if compareOperator(prev, curr) {
		from = uint32(prev.UsedSigningKeys)
	}
	if from > to {
		from = 0
	}
	return from
}
