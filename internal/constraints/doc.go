// Package constraints provides the feasible sets a controller projects its
// candidate controls onto.
//
// Every variant implements [Set]:
//
//   - [None]: the whole space
//   - [Rectangle]: per-axis box, sides may be infinite
//   - [Ball2]: Euclidean ball around a centre
//   - [BallInf]: infinity-norm ball around a centre
//   - [Halfspace]: { u : a·u <= b }
//   - [Cartesian]: product of sets over consecutive index segments
//
// The set is chosen once at controller construction and owned by it.
package constraints
