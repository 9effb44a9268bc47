// Package matching compares an observed request or response with the one an
// interaction expects.
//
// A request is checked part by part in a fixed order:
//
//   - Method: case-insensitive equality
//   - Path: literal, a rule at $, or a template such as /orders/{id} whose
//     parameters are checked by rules at $.id
//   - Query: per parameter and per value, rules at $.name and $.name[i]
//   - Headers: case-insensitive names, comma-separated values, media type
//     aware Content-Type; headers not listed in the expectation are ignored
//   - Body: delegated to package body
//
// Every mismatch found is reported; matching never stops at the first one.
// The outcome is a Result, whose mismatches are tagged with the message part
// they belong to.
//
// Specificity scores an expected request so that the mock server can prefer
// the most specific of several interactions matching the same request. Score
// constants are defined in scores.go.
package matching
