// Package workflow holds the data model executed by the engine package: an
// ordered, append-only list of Steps bound to automation engines plus the
// session state carried between them.
//
// A Workflow is built once (Define + AddStep, or from a YAML Definition),
// handed to exactly one execute call at a time, and made re-runnable with
// Reset. Step order is definition order; there is no API to remove or reorder
// steps.
//
// Step status changes go through the transition table in package core, so a
// step can only move Pending→Running→{Success,Failed}, re-enter Running on a
// retry, or become Skipped while still Pending.
package workflow
