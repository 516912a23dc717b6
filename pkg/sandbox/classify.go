package sandbox

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	emptyOutputMessage = "Code ran successfully with no output. (Did you forget to use `print()`?)"
	dataTypeHint       = "Data type error: Some columns have mixed types. Please use only numeric columns for plotting, or convert columns to numeric first."
	noErrorDetails     = "(No error details available)"

	// dtypeDetailLimit caps the stderr excerpt attached to data type errors.
	dtypeDetailLimit = 500
)

// dtypeMarkers identify numpy/pandas type promotion failures.
var dtypeMarkers = []string{
	"DTypePromotionError",
	"DType promotion",
}

// noisyModules are libraries whose warnings are chatter rather than signal.
var noisyModules = []string{"matplotlib", "seaborn", "pandas", "numpy", "sklearn", "scipy"}

// warningHeader matches the first line Python's warnings module prints:
// "<file>:<line>: <Category>: <message>".
var warningHeader = regexp.MustCompile(`^(.*?):\d+: ([A-Za-z]*Warning): (.*)$`)

// timeoutMessage is returned to the model when the wall-clock limit fires.
func timeoutMessage(timeoutSeconds int) string {
	return fmt.Sprintf("Error: Code execution timed out after %d seconds. The code may be taking too long or stuck in an infinite loop.", timeoutSeconds)
}

// classify applies the outcome policy to a finished (not timed out) process.
func classify(stdout, stderr string, exitCode int) (Classification, string) {
	if exitCode != 0 {
		header := fmt.Sprintf("Code execution failed (exit code %d):\n%s", exitCode, stdout)
		if mentionsDTypeMismatch(stdout) || mentionsDTypeMismatch(stderr) {
			return DataTypeError, header + "\n" + dataTypeHint + "\nFull error: " + cutUTF8(stderr, dtypeDetailLimit)
		}
		details := stderr
		if strings.TrimSpace(details) == "" {
			details = noErrorDetails
		}
		return RuntimeError, header + "\n--- Errors/Warnings ---\n" + details
	}

	if strings.TrimSpace(stdout) == "" {
		return EmptyOutput, emptyOutputMessage
	}

	if meaningful := filterNoise(stderr); meaningful != "" {
		return Success, stdout + "\n\n--- Warnings ---\n" + meaningful
	}
	return Success, stdout
}

// cutUTF8 returns at most n bytes of s without splitting a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func mentionsDTypeMismatch(s string) bool {
	for _, m := range dtypeMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// filterNoise drops warnings raised from the analysis libraries, together with
// the indented source line Python echoes after each warning, and returns what
// is left trimmed.
func filterNoise(stderr string) string {
	if strings.TrimSpace(stderr) == "" {
		return ""
	}

	var kept []string
	skipping := false
	for _, line := range strings.Split(stderr, "\n") {
		if skipping && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			continue
		}
		skipping = false

		if m := warningHeader.FindStringSubmatch(line); m != nil && isNoisyWarning(m[1], m[2], m[3]) {
			skipping = true
			continue
		}
		if strings.HasPrefix(line, "Matplotlib is building the font cache") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isNoisyWarning(file, category, message string) bool {
	switch category {
	case "DeprecationWarning", "FutureWarning", "PendingDeprecationWarning":
		return true
	}
	lowerFile := strings.ToLower(file)
	lowerMsg := strings.ToLower(message)
	for _, mod := range noisyModules {
		if strings.Contains(lowerFile, mod) || strings.Contains(lowerMsg, mod) {
			return true
		}
	}
	return strings.Contains(message, "FigureCanvasAgg is non-interactive")
}
