// Package cli implements the contractd command line: serving a contract as
// a mock server, validating contract files and comparing bodies with the
// format matchers.
package cli
