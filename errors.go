package engram

import "fmt"

// NotInitializedError is returned by any API call made before Init/New has
// completed successfully.
type NotInitializedError struct{}

func (e *NotInitializedError) Error() string { return "engram: store not initialized" }

// EmbedderFailure wraps an error returned by the embedding backend.
type EmbedderFailure struct {
	Err error
}

func (e *EmbedderFailure) Error() string { return fmt.Sprintf("engram: embedder failure: %v", e.Err) }
func (e *EmbedderFailure) Unwrap() error { return e.Err }

// LLMFailure wraps an error returned by the summarization backend.
type LLMFailure struct {
	Err error
}

func (e *LLMFailure) Error() string { return fmt.Sprintf("engram: llm failure: %v", e.Err) }
func (e *LLMFailure) Unwrap() error { return e.Err }

// PersistenceFailure wraps an error from writing the store file. It is
// never fatal: the in-memory set is kept and the store keeps serving from
// it. A failed load is not reported with this type; the store logs a
// warning and starts with an empty set.
type PersistenceFailure struct {
	Op  string // the failed operation; the store sets "save"
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("engram: persistence %s failure: %v", e.Op, e.Err)
}
func (e *PersistenceFailure) Unwrap() error { return e.Err }

// ConfigError is raised at construction time for an unknown provider tag or
// a missing required API key.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "engram: config error: " + e.Reason }

// CorruptInputError describes a malformed persisted-memory record — missing
// content or an embedding whose length disagrees with the rest of the
// store. The load path never surfaces this to the caller: the record is
// silently skipped and loading continues, per §7.
type CorruptInputError struct {
	ID     string
	Reason string
}

func (e *CorruptInputError) Error() string {
	return fmt.Sprintf("engram: corrupt input %q: %s", e.ID, e.Reason)
}
