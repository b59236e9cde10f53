// Package apple provides the Apple Speech backend. On macOS it bridges to a
// helper executable wrapping SFSpeechRecognizer; on every other platform it
// compiles to a stub whose operations all report that Apple Speech is
// unavailable. Both variants satisfy speech.Backend, so the daemon registers
// this package unconditionally and lets the build target pick the behavior.
package apple

// BackendName identifies this backend in the registry
const BackendName = "apple"

// UnavailableMessage is the fixed error text reported on non-macOS platforms
const UnavailableMessage = "Apple Speech is only available on macOS"

// HelperMissingMessage is reported on macOS when the helper binary cannot be found
const HelperMissingMessage = "Apple Speech helper not found"

// Config holds settings for the macOS helper bridge. The stub accepts and
// ignores it so construction looks the same on every platform.
type Config struct {
	// HelperPath overrides helper discovery. When empty the backend
	// searches PATH, then $SPEECHD_APPLE_HELPER, then the directory of
	// the running executable.
	HelperPath string
}
