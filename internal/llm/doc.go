// Package llm turns free-form chat text into structured action parameters.
// Providers implement Extractor and must honour context cancellation; none of
// them retry on failure.
package llm
