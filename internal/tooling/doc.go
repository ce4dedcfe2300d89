// Package tooling models the external tool backend: capability descriptors,
// the normalized argument contract parsed once at the registry boundary, a
// cache-free registry, and a gate that serializes calls over the shared
// transport connection. Concrete transports live in the mcp and jsonrpc
// subpackages.
package tooling
