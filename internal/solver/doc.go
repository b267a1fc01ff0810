// Package solver implements a warm-started, iteration-bounded solver for
//
//	minimize f(u) subject to u in C
//
// where f is smooth and C is a closed set with a cheap projection.
//
// Each iteration takes a projected-gradient (forward-backward) step whose
// length comes from a backtracked Lipschitz estimate of the gradient, then
// tries an L-BFGS step on the fixed-point residual, accepted only if it
// decreases the forward-backward envelope. This is the PANOC scheme.
//
// The [Cache] carries the last solution between calls so the next solve
// starts from it, and bounds the work per call with an iteration cap.
// When the cap is hit the best feasible iterate is still returned and the
// [Status] reports Converged == false.
package solver
