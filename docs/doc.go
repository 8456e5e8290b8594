// Package docs is the bundled documentation engine. It exposes three MCP
// tools that look up Rust crate documentation on docs.rs and search the
// crates.io registry, caching fetched pages in memory or in Redis.
//
//	client := docs.NewClient(docs.WithCache(docs.NewMemoryCache()))
//	factory := docs.NewHandler(client).Factory()
//	bridge := transport.NewSSE(":8080", factory)
package docs
