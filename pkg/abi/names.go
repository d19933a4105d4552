package abi

// Well-known export names of the guest ABI.
// This package defines names shared between the loader, bundles and the CLI.

// ExportMemory is the conventional name of the exported linear memory.
const ExportMemory = "memory"

// Start routines, called in order after instantiation when exported.
const (
	StartInitialize = "_initialize"
	StartBindgen    = "__wbindgen_start"
)

// Allocator and exception-slot exports.
const (
	ExportMalloc   = "__wbindgen_malloc"
	ExportRealloc  = "__wbindgen_realloc"
	ExportFree     = "__wbindgen_free"
	ExportExnStore = "__wbindgen_exn_store"
)

// Role identifies a low-level export used for marshaling data across the boundary.
type Role int

const (
	RoleMalloc Role = iota + 1
	RoleRealloc
	RoleFree
	RoleExnStore
)

func (r Role) String() string {
	switch r {
	case RoleMalloc:
		return "malloc"
	case RoleRealloc:
		return "realloc"
	case RoleFree:
		return "free"
	case RoleExnStore:
		return "exn_store"
	default:
		return "unknown"
	}
}

// Candidates returns the export names that may implement a role, in lookup order.
// Bindgen-style names win over plain libc names.
func Candidates(r Role) []string {
	switch r {
	case RoleMalloc:
		return []string{ExportMalloc, "malloc"}
	case RoleRealloc:
		return []string{ExportRealloc, "realloc"}
	case RoleFree:
		return []string{ExportFree, "free"}
	case RoleExnStore:
		return []string{ExportExnStore}
	default:
		return nil
	}
}

// DefaultStartFunctions are the start routines run when no override is configured.
func DefaultStartFunctions() []string {
	return []string{StartInitialize, StartBindgen}
}
