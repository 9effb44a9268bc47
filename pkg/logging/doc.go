// Package logging configures log/slog for contractd.
//
// Components accept a *slog.Logger through an option and default to Nop:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//	srv, err := mockserver.New(interactions, cfg, mockserver.WithLogger(logger))
//
// The mock server logs each request outcome at debug, unmatched requests
// and per-request I/O failures at warn. The matching engine does not log.
package logging
