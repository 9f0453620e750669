package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category    Category
	Message     string
	Explanation string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Transport (E100-E109)
	"E100": {
		Category:    CategoryTransport,
		Message:     "Cannot listen on address",
		Explanation: "The canvas server could not bind or listen on the configured address. Another process may own the port, or the address is not local.",
	},
	"E101": {
		Category:    CategoryTransport,
		Message:     "Socket polling failed",
		Explanation: "The tick loop could not poll its sockets. The listening socket may have been closed or the process ran out of file descriptors.",
	},
	"E102": {
		Category:    CategoryTransport,
		Message:     "Cannot connect to canvas server",
		Explanation: "The client could not open a WebSocket to the server. Check the address and that the server is running.",
	},

	// Protocol (E110-E119)
	"E110": {
		Category:    CategoryProtocol,
		Message:     "Handshake request has no Sec-WebSocket-Key",
		Explanation: "The upgrade request did not carry the key needed to compute the accept token. The connection is closed.",
	},
	"E111": {
		Category:    CategoryProtocol,
		Message:     "Frame truncated",
		Explanation: "A frame header announced more payload bytes than were received.",
	},
	"E112": {
		Category:    CategoryProtocol,
		Message:     "Invalid update message",
		Explanation: "A message received from the server could not be decoded as an update.",
	},

	// Config (E120-E129)
	"E120": {
		Category:    CategoryConfig,
		Message:     "Cannot read configuration",
		Explanation: "textcanvas.json exists but could not be read or is not valid JSON.",
	},
	"E121": {
		Category:    CategoryConfig,
		Message:     "Cannot write configuration",
		Explanation: "textcanvas.json could not be written.",
	},
	"E122": {
		Category:    CategoryConfig,
		Message:     "Invalid port",
		Explanation: "Ports must be between 0 and 65535. Port 0 asks the system for a free port.",
	},
	"E123": {
		Category:    CategoryConfig,
		Message:     "Invalid frame delay",
		Explanation: "The delay between ticks must be a positive duration such as 100ms.",
	},
	"E124": {
		Category:    CategoryConfig,
		Message:     "Invalid log level",
		Explanation: "Log levels are debug, info, warn and error.",
	},

	// Storage (E130-E139)
	"E130": {
		Category:    CategoryStorage,
		Message:     "Cannot open store",
		Explanation: "The persistence backend named by the DSN could not be opened or migrated.",
	},
	"E131": {
		Category:    CategoryStorage,
		Message:     "Unsupported store DSN",
		Explanation: "Store DSNs start with sqlite:, postgres://, postgresql://, redis:// or memory:.",
	},
	"E132": {
		Category:    CategoryStorage,
		Message:     "Cannot read canvas",
		Explanation: "Loading the persisted cells failed.",
	},

	// Export (E140-E149)
	"E140": {
		Category:    CategoryExport,
		Message:     "Snapshot export failed",
		Explanation: "The canvas snapshot could not be uploaded to object storage.",
	},
	"E141": {
		Category:    CategoryExport,
		Message:     "Missing export bucket",
		Explanation: "Exports need a bucket name, from --bucket or export.bucket in textcanvas.json.",
	},

	// CLI (E150-E159)
	"E150": {
		Category:    CategoryCLI,
		Message:     "Discovery failed",
		Explanation: "Browsing or advertising canvas servers on the local network failed.",
	},
}

// GetAllCodes returns all registered error codes in order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
