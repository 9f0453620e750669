// Package errors provides coded, actionable errors for the textcanvas
// command line.
//
// Each error carries a code from a fixed registry (e.g. "E100") that maps to
// a category, a short message and a longer explanation. Call sites add the
// specifics with WithDetail, WithSuggestion and Wrap:
//
//	err := errors.New("E100").
//	    WithDetail("0.0.0.0:10500").
//	    WithSuggestion("Pick another port with --port").
//	    Wrap(cause)
//
//	errors.PrintError(err)
//	// ERROR E100: Cannot listen on address
//	//
//	//   0.0.0.0:10500
//	//
//	//   Hint: Pick another port with --port
//	//
//	//   Cause: bind: address already in use
//
// # Categories
//
//   - config: the textcanvas.json file or flag values
//   - transport: sockets, listening and accepting
//   - protocol: handshake and framing
//   - storage: persistence backends
//   - export: snapshot upload
//   - cli: command usage
//
// Library packages under pkg/ return plain sentinel errors; only the
// internal packages and the CLI wrap them in a CanvasError.
package errors
