// Package tools defines the fixed catalog of capabilities the model can
// invoke during a chat session and the Registry that dispatches calls by
// name.
//
// Tool names are a closed set of Name constants. A call for a name that is
// not registered fails with ErrUnknownTool so the engine can feed the error
// back to the model instead of ending the session.
package tools
