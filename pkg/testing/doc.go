// Package testing lets consumer tests declare the interactions they expect
// from a provider, exercise their client against a mock server and fail
// when the client strays from the contract.
//
// Import it under a name that does not clash with the standard library:
//
//	import ctest "github.com/getmockd/contractd/pkg/testing"
//
//	func TestOrderClient(t *testing.T) {
//		ct := ctest.New(t)
//		ct.Interaction("get an open order").
//			WithRequest("GET", "/orders/{id}").
//			WithRule(rules.CategoryPath, "id", rules.Integer()).
//			WillRespondWith(200).
//			WithResponseJSONBody(map[string]any{"status": "open"})
//
//		ct.Run(func(url string) error {
//			_, err := NewClient(url).GetOrder(42)
//			return err
//		})
//	}
package testing
