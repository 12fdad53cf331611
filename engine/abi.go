package engine

// HostModule is the import module the Wren reactor uses to call back into
// the host.
const HostModule = "wren_host"

// Reactor exports besides the embedding API.
const (
	ExportMemory     = "memory"
	ExportMalloc     = "malloc"
	ExportFree       = "free"
	ExportInitialize = "_initialize"
)

// Embedding API exports. Each is the C function of the same name in snake
// case; pointers and VM, handle and slot arguments are i32, doubles f64.
const (
	fnVersion         = "wren_get_version_number"
	fnNewVM           = "wren_new_vm"
	fnFreeVM          = "wren_free_vm"
	fnInterpret       = "wren_interpret"
	fnCollectGarbage  = "wren_collect_garbage"
	fnEnsureSlots     = "wren_ensure_slots"
	fnSlotCount       = "wren_get_slot_count"
	fnSlotType        = "wren_get_slot_type"
	fnSetSlotNull     = "wren_set_slot_null"
	fnSetSlotBool     = "wren_set_slot_bool"
	fnSetSlotDouble   = "wren_set_slot_double"
	fnSetSlotString   = "wren_set_slot_string"
	fnSetSlotBytes    = "wren_set_slot_bytes"
	fnSetSlotHandle   = "wren_set_slot_handle"
	fnSlotBool        = "wren_get_slot_bool"
	fnSlotDouble      = "wren_get_slot_double"
	fnSlotString      = "wren_get_slot_string"
	fnSlotBytes       = "wren_get_slot_bytes"
	fnSlotHandle      = "wren_get_slot_handle"
	fnSetSlotForeign  = "wren_set_slot_new_foreign"
	fnSlotForeign     = "wren_get_slot_foreign"
	fnSetSlotNewList  = "wren_set_slot_new_list"
	fnListCount       = "wren_get_list_count"
	fnListElement     = "wren_get_list_element"
	fnSetListElement  = "wren_set_list_element"
	fnInsertInList    = "wren_insert_in_list"
	fnSetSlotNewMap   = "wren_set_slot_new_map"
	fnMapCount        = "wren_get_map_count"
	fnMapContainsKey  = "wren_get_map_contains_key"
	fnMapValue        = "wren_get_map_value"
	fnSetMapValue     = "wren_set_map_value"
	fnRemoveMapValue  = "wren_remove_map_value"
	fnMakeCallHandle  = "wren_make_call_handle"
	fnCall            = "wren_call"
	fnReleaseHandle   = "wren_release_handle"
	fnVariable        = "wren_get_variable"
	fnHasVariable     = "wren_has_variable"
	fnHasModule       = "wren_has_module"
	fnAbortFiber      = "wren_abort_fiber"
)

// Host functions imported from HostModule. Strings are NUL-terminated
// pointers into the caller's memory. A resolved name is allocated with the
// caller's malloc and owned by the reactor afterwards; a loaded source is
// handed back through load_module_complete, which frees it.
//
//	write(vm, text)
//	error(vm, type, module, line, message)
//	resolve_module(vm, importer, name) -> name | 0
//	load_module(vm, name) -> source | 0
//	load_module_complete(vm, name, source)
//	bind_foreign_method(vm, module, class, is_static, signature) -> id | 0
//	bind_foreign_class(vm, module, class) -> id | 0
//	call_foreign(vm, id)
//	finalize(id, data)
//
// Foreign method and allocator ids are handed out by the host. The reactor
// dispatches its trampolines back through call_foreign and finalize.
const (
	hostWrite              = "write"
	hostError              = "error"
	hostResolveModule      = "resolve_module"
	hostLoadModule         = "load_module"
	hostLoadModuleComplete = "load_module_complete"
	hostBindForeignMethod  = "bind_foreign_method"
	hostBindForeignClass   = "bind_foreign_class"
	hostCallForeign        = "call_foreign"
	hostFinalize           = "finalize"
)

// RequiredExports lists the function exports a Wren reactor must provide.
var RequiredExports = []string{
	ExportMalloc, ExportFree,
	fnVersion, fnNewVM, fnFreeVM, fnInterpret, fnCollectGarbage,
	fnEnsureSlots, fnSlotCount, fnSlotType,
	fnSetSlotNull, fnSetSlotBool, fnSetSlotDouble, fnSetSlotString, fnSetSlotBytes, fnSetSlotHandle,
	fnSlotBool, fnSlotDouble, fnSlotString, fnSlotBytes, fnSlotHandle,
	fnSetSlotForeign, fnSlotForeign,
	fnSetSlotNewList, fnListCount, fnListElement, fnSetListElement, fnInsertInList,
	fnSetSlotNewMap, fnMapCount, fnMapContainsKey, fnMapValue, fnSetMapValue, fnRemoveMapValue,
	fnMakeCallHandle, fnCall, fnReleaseHandle,
	fnVariable, fnHasVariable, fnHasModule,
	fnAbortFiber,
}
