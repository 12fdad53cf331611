package foreign

import (
	wrenruntime "github.com/wippyai/wren-runtime"
	"github.com/wippyai/wren-runtime/errors"
)

// Store writes id into the foreign storage block at ptr.
func Store(mem wrenruntime.Memory, ptr wrenruntime.Ptr, id ID) error {
	if ptr == 0 {
		return errors.NilPointer(errors.PhaseForeign, nil, "foreign storage")
	}
	if err := mem.WriteU64(ptr, uint64(id)); err != nil {
		return errors.Wrap(errors.PhaseForeign, errors.KindOutOfBounds, err, "write foreign id")
	}
	return nil
}

// Load reads the id carried by the foreign storage block at ptr.
func Load(mem wrenruntime.Memory, ptr wrenruntime.Ptr) (ID, error) {
	if ptr == 0 {
		return 0, errors.NilPointer(errors.PhaseForeign, nil, "foreign storage")
	}
	v, err := mem.ReadU64(ptr)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseForeign, errors.KindOutOfBounds, err, "read foreign id")
	}
	return ID(v), nil
}
