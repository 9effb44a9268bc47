// Package id generates identifiers for mock servers and the requests they
// record.
//
//   - Server: a random UUID naming a mock server session
//   - Request: a time-ordered UUID (version 7), so request IDs sort in
//     arrival order
//   - Short: the first eight hex digits of a random UUID, for log lines
package id
