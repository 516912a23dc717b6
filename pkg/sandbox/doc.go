// Package sandbox executes model-generated Python code in an isolated child
// process.
//
// Each call to [Executor.Execute] builds a self-contained program (standard
// data analysis imports, the optional dataset loaded into a pandas DataFrame
// named df, then the caller's code verbatim), writes it into a fresh temporary
// directory and runs the configured interpreter there. The child gets its own
// process group, a scrubbed environment and optional CPU, memory and network
// limits. A hard wall-clock timeout kills the whole group.
//
// Failures are data, not errors: every outcome, including launch failures,
// is reported as a [Result] with a [Classification] and a message meant to
// be handed back to the model.
package sandbox
