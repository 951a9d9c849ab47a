// Package server implements the MCP (Model Context Protocol) tool server for
// art grids.
//
// This package provides a JSON-RPC 2.0 server that exposes art item, layout
// and compositing operations through the MCP protocol.
//
// # Protocol
//
// The server is started by `artgrid mcp` and communicates over stdio using
// JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Images:
//   - image_dimensions: Width, height, orientation and MIME type
//
// Art items:
//   - art_thumbnail: Generate and save a thumbnail
//   - art_to_canvas: Describe an item as an IIIF Canvas or Manifest
//
// Layouts:
//   - layout_create: Random placement of an item pool
//   - layout_to_iiif: Describe a layout as an IIIF Manifest or Collection
//   - layout_assemble: Composite and write tiled output
//
// # Layout Sessions
//
// Layouts created during a session are kept in memory and, when a store is
// configured, recorded in it. Later calls look a layout up by id in the
// session first and in the store second, so a layout built in one session
// can be assembled in another.
//
// # Image Caching
//
// image_dimensions resolves paths through a resource.Cache, so repeated
// lookups of the same location fetch and probe it once for the lifetime of
// the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: {"code": INPUT | RESOURCE_UNAVAILABLE | ..., "details": error text}
//
// # Usage
//
//	srv := server.New(server.Options{Services: svc, Store: st, Config: cfg})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
