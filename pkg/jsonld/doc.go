// Package jsonld resolves JSON-LD request bodies against locally cached contexts.
//
// At startup the well-known Catena-X contexts are registered into a
// storage.DocumentStore; Loader serves them to json-gold so compaction never needs
// the network unless remote contexts are explicitly allowed. Interceptor expands
// bodies that carry @context and re-compacts them against the management context,
// producing the plain terms the schema and transformer expect.
package jsonld
