// Package engine defines the contract with the external ecological
// simulation core and the capability state that gates its lifecycle.
//
// The simulation core is an opaque collaborator: it owns the numerical
// model, holds an exclusive file lock on its model database, and supports
// exactly one live handle per OS process. This package models only the
// narrow surface the orchestrator needs: parameter setters and getters,
// sub-model runs, result extraction, and close. Implementations live
// elsewhere (see the host subpackage for the production adapter).
package engine
