// Package core provides the foundational domain types and contracts used by
// enginebridge. It defines the core abstractions for:
//
//   - Engines (automation backends identified by an EngineType tag)
//   - The EngineTable lookup mapping engine types to handle keys and
//     session injection modes
//   - Step lifecycle (StepStatus + transition table, FailurePolicy)
//   - Session transfer (SessionGateway, opaque SessionState)
//   - Run history (RunRecord, RunStore)
//
// The package intentionally keeps implementation concerns (execution,
// persistence, concrete engines) out of scope, exposing small interfaces to
// enable custom backends. Engine handles and session state are opaque to
// everything in this package.
package core
