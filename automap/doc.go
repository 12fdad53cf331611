// Package automap exposes Go types to Wren scripts as foreign classes.
//
// A class is declared with a ClassDescriptor, built by hand, with the
// Builder, or by reflecting over a Go type:
//
//	vector := automap.Define[Vector]("Vector").
//		Constructor(func(x, y float64) *Vector { return &Vector{x, y} }, "x", "y").
//		Getter("x", func(v *Vector) float64 { return v.X }).
//		StaticMethod("getLength", func(x, y float64) float64 { return math.Hypot(x, y) }).
//		Descriptor()
//
//	if err := automap.Map(vm, "main", vector); err != nil {
//		return err
//	}
//
//	err := automap.AutoMap[Account](vm, "bank")
//
// Mapping generates a foreign class declaration, binds every member by its
// canonical signature and installs the allocator and finalizer. Classes
// mapped into "main" are interpreted right away; other modules are served
// to import statements.
//
// # Handlers
//
// Typed handlers receive their arguments converted from slots and return
// at most one value plus an error. Context handlers take *runtime.VM and
// work on the slots themselves. See Member for the accepted shapes and
// SlotValue and SetSlotValue for the conversions.
//
// # Errors
//
// Descriptors are validated when mapped. A malformed handler or name is
// errors.ErrInvalidSignature, two members with the same signature are
// errors.ErrDuplicateSignature, instance members without a constructor are
// errors.ErrMissingAllocator. Adding classes to a module the engine has
// already imported is errors.ErrModuleAlreadyLoaded unless the mapper was
// created with WithModificationAfterLoad(true).
package automap
