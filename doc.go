// Package httpwire is a from-scratch HTTP/1.1 user-agent library. It opens
// TCP (optionally TLS) connections to origin servers, serialises requests,
// parses responses and exposes them through a transaction API. It speaks the
// wire protocol directly over byte streams and depends on no HTTP library.
//
// The protocol machinery lives in the subpackages:
//
//   - wire: versions, methods, status codes, chunked transfer coding and
//     content codings
//   - header: case-insensitive header containers with a known-header registry
//   - conn: endpoints, sockets and the connection pool
//   - cache: pluggable response cache and caching policies
//   - client: transactions, requests, responses and chunked uploads
//
// This package only holds the error kinds shared by all of them.
package httpwire
