// Package services provides the business logic of the formula subsystem.
//
//   - FormulaFieldService types formulas, creates, updates and deletes fields
//     and keeps every dependant formula consistent with its sources.
//   - PeriodicFieldUpdater recomputes formulas that read the clock.
//   - ZapErrorReporter files internal errors that must not fail a request.
//
// Services depend on the interfaces of internal/domain/ports only.
package services
