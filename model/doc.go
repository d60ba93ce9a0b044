// Package model defines the core record and result types shared by the
// vecsearch store, backends and service.
//
// # Data Types
//
//   - Record: an ID, a vector and optional scalar metadata
//   - Match: a search result with its distance and native score
//   - Slot: the dense storage position of a live record inside a store
//
// # Record Builder
//
// Use the fluent API to construct records:
//
//	rec := model.NewRecord("nft-42", vec).
//	    WithMetadata("type", metadata.String("ERC-1155")).
//	    Build()
package model
