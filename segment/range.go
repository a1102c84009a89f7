package segment

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/segsim/memutils"
)

// AddressRange is an immutable [base, limit) interval of simulated byte addresses
type AddressRange struct {
	base  uint64
	limit uint64
}

// NewAddressRange creates an AddressRange covering [base, limit). It panics if limit is below
// base.
func NewAddressRange(base, limit uint64) AddressRange {
	if limit < base {
		panic(errors.AssertionFailedf("address range limit %d is below its base %d", limit, base))
	}

	return AddressRange{base: base, limit: limit}
}

// Base is the first address in the range
func (r AddressRange) Base() uint64 { return r.base }

// Limit is the first address past the end of the range
func (r AddressRange) Limit() uint64 { return r.limit }

// Size is the number of bytes the range covers
func (r AddressRange) Size() uint64 { return r.limit - r.base }

// Overlaps returns true if the two ranges share at least one address
func (r AddressRange) Overlaps(other AddressRange) bool {
	return r.base < other.limit && other.base < r.limit
}

// Contains returns true if address lies within the range
func (r AddressRange) Contains(address uint64) bool {
	return address >= r.base && address < r.limit
}

func (r AddressRange) String() string {
	return fmt.Sprintf("[%s, %s)", memutils.FormatAddress(r.base), memutils.FormatAddress(r.limit))
}
