// Package queryir provides the backend-neutral query plan that every request
// style is translated into.
//
// ARCHITECTURE:
//
// The plan sits between the request parsers and the execution backends:
//
//	[resource params] → planner    ┐
//	                               ├→ [Plan] → [SQL backend]
//	[graph request]   → graphquery ┘         → [memory backend]
//
// A Plan is fully validated when it leaves the planner: every field name
// resolves against a schema.Descriptor, every literal is typed, every alias
// is an identifier, and pagination is bounded. Backends never see raw
// request text.
//
// SEALED INTERFACES:
//
// Predicate, SelectItem and Page are sealed interfaces using the marker
// method pattern. Only types in this package implement them, so backends
// can switch exhaustively:
//
//	switch p := pred.(type) {
//	case In, *In:
//	case Compare, *Compare:
//	case And, *And:
//	case Or, *Or:
//	case Not, *Not:
//	}
//
// REJECTIONS:
//
// A request that cannot become a Plan fails with a *Rejection carrying one of
// the RejectionKind codes and the offending token. Rejections are client
// errors; infrastructure failures are never reported as rejections.
//
// IDENTITY:
//
// Plan.Fingerprint hashes the canonical JSON form of a plan. Equal requests
// produce equal plans and equal fingerprints.
package queryir
