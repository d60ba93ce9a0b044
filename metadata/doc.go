// Package metadata provides typed record metadata and filter predicates for vecsearch.
//
// # Metadata Types
//
// Record metadata maps string keys to scalar values:
//
//   - String: metadata.String("ERC-1155")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//
// Example:
//
//	meta := metadata.Document{
//	    "type":     metadata.String("ERC-20"),
//	    "year":     metadata.Int(2024),
//	    "verified": metadata.Bool(true),
//	}
//
// Arrays are only valid as the operand of an In filter; Document.Validate
// rejects them in stored records.
//
// # Comparison Semantics
//
// Numbers compare across kinds (Int(3) equals Float(3.0)). Strings and bools
// compare only with values of the same kind. Ordering operators (Gt, Gte, Lt,
// Lte) are defined for numbers only; any other kind never matches. A filter
// on a key that is absent from the document never matches.
//
// # Filter Operations
//
//   - Eq(field, value): Equality check
//   - Neq(field, value): Inequality check
//   - Gt, Gte, Lt, Lte: Numeric ordering
//   - In(field, values...): Value in set
//   - Contains(field, substr): Substring match on strings
//
// A FilterSet combines filters with AND logic:
//
//	filter := metadata.NewFilterSet(
//	    metadata.Eq("type", metadata.String("ERC-1155")),
//	    metadata.Gte("year", metadata.Int(2023)),
//	)
//
// # Wire Format
//
// On the wire (JSON), values are plain JSON scalars and a filter set is an
// array of {"key", "op", "value"} objects. Use DocumentFromAny and
// Document.ToMap to convert between typed documents and map[string]any.
package metadata
