package sandbox

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		stdout       string
		stderr       string
		exitCode     int
		want         Classification
		wantMessage  string
		wantContains []string
	}{
		{
			name:        "stdout returned verbatim",
			stdout:      "2.0\n",
			want:        Success,
			wantMessage: "2.0\n",
		},
		{
			name:        "empty stdout",
			stdout:      "",
			want:        EmptyOutput,
			wantMessage: emptyOutputMessage,
		},
		{
			name:        "whitespace only stdout",
			stdout:      "  \n\t\n",
			want:        EmptyOutput,
			wantMessage: emptyOutputMessage,
		},
		{
			name:        "empty stdout with meaningful stderr",
			stderr:      "something odd\n",
			want:        EmptyOutput,
			wantMessage: emptyOutputMessage,
		},
		{
			name:        "library warnings suppressed",
			stdout:      "ok\n",
			stderr:      "/usr/lib/python3/site-packages/matplotlib/backend_bases.py:2445: UserWarning: FigureCanvasAgg is non-interactive, and thus cannot be shown\n  plt.show()\n",
			want:        Success,
			wantMessage: "ok\n",
		},
		{
			name:        "future warnings suppressed",
			stdout:      "ok\n",
			stderr:      "/tmp/datagem-exec-1/script.py:30: FutureWarning: The default of observed=False is deprecated\n  df.groupby('a').sum()\n",
			want:        Success,
			wantMessage: "ok\n",
		},
		{
			name:        "meaningful stderr appended",
			stdout:      "ok\n",
			stderr:      "custom diagnostics\n",
			want:        Success,
			wantMessage: "ok\n\n\n--- Warnings ---\ncustom diagnostics",
		},
		{
			name:        "user warning kept while library noise dropped",
			stdout:      "ok\n",
			stderr:      "/x/numpy/core/fromnumeric.py:3504: RuntimeWarning: Mean of empty slice.\n  return _methods._mean(\n/tmp/d/script.py:12: UserWarning: check your input\n  warnings.warn(\"check your input\")\n",
			want:        Success,
			wantMessage: "ok\n\n\n--- Warnings ---\n/tmp/d/script.py:12: UserWarning: check your input\n  warnings.warn(\"check your input\")",
		},
		{
			name:         "runtime error with stderr",
			stdout:       "partial\n",
			stderr:       "Traceback (most recent call last):\nZeroDivisionError: division by zero\n",
			exitCode:     1,
			want:         RuntimeError,
			wantContains: []string{"Code execution failed (exit code 1):\npartial\n", "--- Errors/Warnings ---", "ZeroDivisionError"},
		},
		{
			name:         "runtime error without details",
			exitCode:     2,
			want:         RuntimeError,
			wantContains: []string{"exit code 2", noErrorDetails},
		},
		{
			name:         "string column arithmetic is a runtime error",
			stderr:       "TypeError: unsupported operand type(s) for /: 'int' and 'str'\n",
			exitCode:     1,
			want:         RuntimeError,
			wantContains: []string{"unsupported operand type"},
		},
		{
			name:         "dtype promotion error",
			stderr:       "numpy.exceptions.DTypePromotionError: The DType <class 'numpy.dtypes.StrDType'> could not be promoted\n",
			exitCode:     1,
			want:         DataTypeError,
			wantContains: []string{dataTypeHint, "Full error: numpy.exceptions.DTypePromotionError"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := classify(tt.stdout, tt.stderr, tt.exitCode)
			if got != tt.want {
				t.Fatalf("classification = %q, want %q", got, tt.want)
			}
			if tt.wantMessage != "" && msg != tt.wantMessage {
				t.Errorf("message = %q, want %q", msg, tt.wantMessage)
			}
			for _, s := range tt.wantContains {
				if !strings.Contains(msg, s) {
					t.Errorf("message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestClassify_DTypeDetailTruncated(t *testing.T) {
	stderr := "DTypePromotionError: " + strings.Repeat("x", 2000)
	got, msg := classify("", stderr, 1)
	if got != DataTypeError {
		t.Fatalf("classification = %q, want %q", got, DataTypeError)
	}
	_, detail, _ := strings.Cut(msg, "Full error: ")
	if len(detail) != dtypeDetailLimit {
		t.Errorf("detail length = %d, want %d", len(detail), dtypeDetailLimit)
	}
}

func TestClassify_DTypeDetailKeepsRunesWhole(t *testing.T) {
	stderr := "a" + strings.Repeat("é", 300) + " DTypePromotionError"
	_, msg := classify("", stderr, 1)

	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8: %q", msg)
	}
	_, detail, _ := strings.Cut(msg, "Full error: ")
	if len(detail) > dtypeDetailLimit || len(detail) < dtypeDetailLimit-1 {
		t.Errorf("detail length = %d, want %d or one byte less", len(detail), dtypeDetailLimit)
	}
}

func TestCutUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"aé", 2, "a"},
		{"日本語", 4, "日"},
		{"日本語", 6, "日本"},
		{"é", 0, ""},
	}
	for _, tt := range tests {
		if got := cutUTF8(tt.in, tt.n); got != tt.want {
			t.Errorf("cutUTF8(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestFilterNoise(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   string
	}{
		{"empty", "", ""},
		{"font cache notice", "Matplotlib is building the font cache; this may take a moment.\n", ""},
		{"seaborn warning", "/site-packages/seaborn/_oldcore.py:1119: FutureWarning: use_inf_as_na option is deprecated\n  with pd.option_context('mode.use_inf_as_na', True):\n", ""},
		{"plain line kept", "hello from stderr\n", "hello from stderr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filterNoise(tt.stderr); got != tt.want {
				t.Errorf("filterNoise() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeoutMessage(t *testing.T) {
	want := "Error: Code execution timed out after 30 seconds. The code may be taking too long or stuck in an infinite loop."
	if got := timeoutMessage(30); got != want {
		t.Errorf("timeoutMessage(30) = %q, want %q", got, want)
	}
}
