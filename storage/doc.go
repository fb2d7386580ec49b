// Package storage provides clients for the external collaborators of the
// control plane: the content-addressed object store and the reference index.
//
// # Content stores
//
// Content stores are specified using URI format:
//
//	ipfs://ipfs.example.com:5001/?timeout=30s
//	file:///var/lib/storage/
//
// The IPFS store talks to an IPFS node API and maps the control plane's five
// primitives onto add/pin/unpin/object-stat/cat. The file store keeps objects
// and pin bookkeeping on the local filesystem for development and tests.
//
// # Reference index
//
// The reference index is a plain key-value contract used for two key spaces:
//
//	dedup:<hash>     -> {"address": ..., "size": ...}
//	refs:<address>   -> ["ref-id", ...]
//
// NATSIndex backs it with a JetStream key-value bucket; MemoryIndex backs it
// with a map for tests.
package storage
