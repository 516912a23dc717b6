// Package engine implements the streaming dispatcher of DataGem. A chat
// request becomes a Session that owns its dataset, transcript and tool
// registry. The Engine drives the session through its states: it streams
// a model step with a credential from the pool, runs requested tools,
// feeds the results back and yields the model's text to the caller as a
// pull-based iter.Seq[string].
package engine
