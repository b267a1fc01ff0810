// Package models provides plant dynamics usable both as the controller's
// prediction model and as the simulated plant. Every model has as many
// controls as states, one actuator per tracked axis.
package models
