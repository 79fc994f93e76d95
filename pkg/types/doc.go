// Package types defines the core data model shared across the expertgraph
// pipeline: raw source records, canonical graph nodes and edges, and the
// evidence structures returned by retrieval.
package types
