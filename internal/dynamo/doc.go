// Package dynamo provides the numeric primitives shared by the controller,
// its prediction model and the closed-loop harness.
//
//   - [State], [Control]: fixed-length vectors (length N per controller)
//   - [Limits]: per-axis output bounds
//   - [System]: continuous-time dynamics dX/dt = f(X, u, t)
//   - [Integrator]: explicit one-step integration of a [System]
//   - [Metric]: harness-side observation of a closed-loop run
//
// Errors returned by the controller stack wrap the sentinels declared in
// errors.go and are matched with errors.Is.
package dynamo
