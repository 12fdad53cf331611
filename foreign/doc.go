// Package foreign provides the per-VM table that maps foreign object IDs to
// host values.
//
// Wren allocates the storage of a foreign object itself and only tells the
// host about it through the allocate and finalize callbacks. The host keeps
// the real Go value in a Table and writes the table ID into the native
// storage block, so every later method call can find the value again:
//
//	table := foreign.NewTable()
//
//	// allocate callback
//	id := table.Allocate(&Vector{X: 1, Y: 2})
//	ptr := engine.SetSlotNewForeign(vm, 0, 0, foreign.StorageSize)
//	foreign.Store(mem, ptr, id)
//
//	// method call
//	id, _ := foreign.Load(mem, engine.SlotForeign(vm, 0))
//	obj, _ := table.Resolve(id)
//
//	// finalize callback
//	obj, _ := table.Reclaim(id)
//
// IDs are never reused by a table, so a stale ID can only fail to resolve;
// it never aliases a newer object. Tables must not be shared between VMs.
package foreign
