package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lido-go/registry-reconciler/internal/config"
)

func TestCompareMeta(t *testing.T) {
	hashA := common.HexToHash("0xAA")
	hashB := common.HexToHash("0xBB")

	tests := []struct {
		name string
		prev *Meta
		curr *Meta
		want bool
	}{
		{"nil prev", nil, &Meta{KeysOpIndex: 1, BlockHash: hashA}, false},
		{"identical", &Meta{KeysOpIndex: 1, BlockHash: hashA}, &Meta{KeysOpIndex: 1, BlockHash: hashA}, true},
		{"op index advanced", &Meta{KeysOpIndex: 1, BlockHash: hashA}, &Meta{KeysOpIndex: 2, BlockHash: hashA}, false},
		{"hash changed at same op index", &Meta{KeysOpIndex: 1, BlockHash: hashA}, &Meta{KeysOpIndex: 1, BlockHash: hashB}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareMeta(tt.prev, tt.curr); got != tt.want {
				t.Errorf("compareMeta() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompareOperator(t *testing.T) {
	base := Operator{Index: 0, Active: true, TotalSigningKeys: 3, UsedSigningKeys: 1}

	same := base
	changed := base
	changed.UsedSigningKeys = 2

	tests := []struct {
		name string
		prev *Operator
		curr *Operator
		want bool
	}{
		{"nil prev", nil, &base, false},
		{"identical", &base, &same, true},
		{"used advanced", &base, &changed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := compareOperator(tt.prev, tt.curr); got != tt.want {
				t.Errorf("compareOperator() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetToIndex(t *testing.T) {
	op := &Operator{TotalSigningKeys: 4, UsedSigningKeys: 2}

	if got := getToIndex(op, config.VariantKeys); got != 4 {
		t.Errorf("key-mirror getToIndex() = %d, want 4", got)
	}
	if got := getToIndex(op, config.VariantValidators); got != 2 {
		t.Errorf("validator-mirror getToIndex() = %d, want 2", got)
	}
}

func TestGetFromIndex(t *testing.T) {
	tests := []struct {
		name string
		prev *Operator
		curr *Operator
		to   uint32
		want uint32
	}{
		{
			name: "new operator starts at zero",
			prev: nil,
			curr: &Operator{TotalSigningKeys: 3, UsedSigningKeys: 1},
			to:   3,
			want: 0,
		},
		{
			name: "unchanged operator skips immutable prefix",
			prev: &Operator{TotalSigningKeys: 3, UsedSigningKeys: 1},
			curr: &Operator{TotalSigningKeys: 3, UsedSigningKeys: 1},
			to:   3,
			want: 1,
		},
		{
			name: "changed operator refetches from zero",
			prev: &Operator{TotalSigningKeys: 3, UsedSigningKeys: 1},
			curr: &Operator{TotalSigningKeys: 4, UsedSigningKeys: 1},
			to:   4,
			want: 0,
		},
		{
			name: "testnet shrink clamps from to zero",
			prev: &Operator{TotalSigningKeys: 3, UsedSigningKeys: 3},
			curr: &Operator{TotalSigningKeys: 3, UsedSigningKeys: 3},
			to:   2,
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getFromIndex(tt.prev, tt.curr, tt.to); got != tt.want {
				t.Errorf("getFromIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}
