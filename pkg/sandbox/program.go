package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rhuss/datagem/pkg/api"
)

const (
	scriptName  = "script.py"
	datasetName = "dataset.json"
)

// DefaultPreamble is prepended to every program. It imports the analysis
// stack and prints nothing.
const DefaultPreamble = `import sys
import io
import json
import base64
import warnings

import numpy as np
import pandas as pd
import matplotlib
matplotlib.use("Agg")
import matplotlib.pyplot as plt
import seaborn as sns

try:
    import sklearn
    from sklearn import cluster, linear_model, metrics, model_selection, preprocessing
except Exception:
    sklearn = None
`

// datasetLoader reads dataset.json into df. A column is converted to numeric
// only when no non-null value is lost by the conversion.
const datasetLoader = `
with open(%q, encoding="utf-8") as _datagem_f:
    df = pd.DataFrame(json.load(_datagem_f))
for _datagem_col in df.columns:
    try:
        _datagem_num = pd.to_numeric(df[_datagem_col], errors="coerce")
        if _datagem_num.notna().sum() == df[_datagem_col].notna().sum():
            df[_datagem_col] = _datagem_num
    except Exception:
        pass
del _datagem_f
`

// buildProgram returns the full program source for code. When hasDataset is
// false df is bound to None.
func buildProgram(preamble, code string, hasDataset bool) string {
	var b strings.Builder
	b.WriteString(preamble)
	if !strings.HasSuffix(preamble, "\n") {
		b.WriteString("\n")
	}
	if hasDataset {
		fmt.Fprintf(&b, datasetLoader, datasetName)
	} else {
		b.WriteString("\ndf = None\n")
	}
	b.WriteString("\n")
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// writeWorkspace writes the program and, if present, the dataset into dir.
// It returns the script path.
func writeWorkspace(dir, preamble, code string, dataset api.Dataset) (string, error) {
	hasDataset := len(dataset) > 0
	if hasDataset {
		data, err := json.Marshal(dataset)
		if err != nil {
			return "", fmt.Errorf("encode dataset: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, datasetName), data, 0o600); err != nil {
			return "", fmt.Errorf("write dataset: %w", err)
		}
	}

	scriptPath := filepath.Join(dir, scriptName)
	if err := os.WriteFile(scriptPath, []byte(buildProgram(preamble, code, hasDataset)), 0o600); err != nil {
		return "", fmt.Errorf("write program: %w", err)
	}
	return scriptPath, nil
}
