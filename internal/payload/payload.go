// Package payload defines measurement messages a task can consume and their
// conversions to controller state vectors.
package payload

import (
	"time"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// IMU is one inertial sample in body axes.
type IMU struct {
	Timestamp time.Time
	Gyro      [3]float64 // rad/s
	Accel     [3]float64 // m/s²
}

// BodyRates converts an IMU sample to the 3-axis angular-rate state.
func BodyRates(m IMU) dynamo.State {
	return dynamo.State{m.Gyro[0], m.Gyro[1], m.Gyro[2]}
}

// Vector is a measurement that already is a state vector.
type Vector []float64

func Identity(v Vector) dynamo.State {
	return dynamo.State(v).Clone()
}
