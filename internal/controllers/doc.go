// Package controllers holds baseline controllers run through the same
// harness as the predictive controller, for comparison.
package controllers
