/*
Package types provides the core data structures and collaborator interfaces
for metawrite.

This package is the foundation of the write pipeline: it defines the
descriptor model for the remote catalog's metafield types, the identity and
wire-input structures that flow through the coordinators, the outcome
structures returned to callers, and the two boundary interfaces the pipeline
depends on (Transport and OperationRecorder).

# Type Model

The remote service declares metafield types by name ("number_integer",
"boolean", "list.single_line_text_field", ...). TypeDescriptor carries the
parsed form: a Kind plus, for list types, the scalar element kind. List
descriptors never nest.

	td, err := types.ParseType("list.number_integer")
	// td.List == true, td.Element == types.KindInteger

# Identity and Caching

AttributeIdentity names one metafield slot on one owner. The (namespace, key)
pair is the type-resolution cache key: once a pair resolves to a type, that
type is treated as immutable truth for the lifetime of the process.

# Boundary Interfaces

Transport abstracts the authenticated remote API: one mutation entry point
plus two read-side lookups used for type resolution. OperationRecorder is the
narrow "record event" capability the pipeline requires from its logging
collaborator; it must never raise back into the write path.
*/
package types
