package infrastructure

import "github.com/alessio/shellescape"

// FormatCommandLine renders an argument vector (binary first) as a
// copy-pasteable shell command line. Only used for logs and diagnostics;
// exec.Command never sees the result.
func FormatCommandLine(argv []string) string {
	return shellescape.QuoteCommand(argv)
}
