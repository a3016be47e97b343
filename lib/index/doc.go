// Package index provides the secondary indexes of a tKS store: which semantics
// cite a component, which semantics conform to a pattern, and which nids carry a
// given chronology type.
//
// Citations and the semantic-to-pattern mapping are kept in spined maps
// (citingComponentsMap and patternNidMap), so they survive restarts and can be
// scanned in parallel. Pattern and type membership are compressed nid sets
// (NidSet, backed by roaring bitmaps) that only live in memory and are rebuilt
// from a full scan of the record map when the store opens. The rebuild resets the
// spined maps too.
//
// The index is derived from chronology headers alone: a semantic header names
// its pattern and the component it references. Versions never contribute.
package index
