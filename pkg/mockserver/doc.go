// Package mockserver serves a fixed set of expected interactions over HTTP
// and records how arriving requests matched them.
//
// Each expected interaction can be claimed by at most one request. Requests
// are matched concurrently and without holding a lock; a claim is committed
// with a compare-and-swap on the interaction's flag, so when two requests race
// for the same interaction exactly one wins and the other falls through to
// the next candidate or to the no-match diagnostic.
//
// A server moves through the states Created, Starting, Running, Stopping and
// Stopped. A bind or TLS setup failure moves it to Failed instead.
//
//	srv, err := mockserver.Start(ctx, interactions, mockserver.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer srv.Stop(ctx)
//
//	// exercise the client against srv.URL()
//
//	result, err := srv.Verify()
package mockserver
