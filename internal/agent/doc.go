// Package agent hosts the action pipeline. Each Handler binds one action
// descriptor to the shared flow: resolve the Ankr credential, compose the
// conversation state and extraction prompt, ask the language model for
// parameters, validate them, call the Ankr Advanced API once and deliver the
// rendered text through the host callback. Agent groups the handlers, exposes
// the action manifest and records invocation history.
package agent
