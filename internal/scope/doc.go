// Package scope builds and resolves per-file scope graphs.
//
// A scope graph holds the lexical scopes of one buffer together with the
// definitions, imports and references captured by a language's scope query.
// Nodes live in a single arena and edges are index pairs: ownership edges
// point from a node to its scope (and from a scope to its parent), binding
// edges point from a reference to the definition it resolves to.
//
// Symbol kinds are partitioned into namespace groups; a reference only binds
// to a definition of the same group.
package scope
