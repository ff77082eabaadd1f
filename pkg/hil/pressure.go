// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hil

import (
	"math"
	"math/rand"
)

// ISA troposphere constants, valid up to 11 km AMSL
const (
	lapseRate      = 0.0065   // K/m
	temperatureMSL = 288.0    // K
	pressureMSL    = 101325.0 // Pa
	densityMSL     = 1.225    // kg/m^3
	kelvinOffset   = 273.0
	pressureNoise  = 1.0 // Pa RMS
	standardG      = 9.80665
)

// DefaultHomeAltitude is the home altitude AMSL used when none is configured
const DefaultHomeAltitude = 488.0

// BaroReading holds the barometric fields of HIL_SENSOR
type BaroReading struct {
	AbsPressure  float64 // hPa
	DiffPressure float64 // hPa
	PressureAlt  float64 // m
	Temperature  float64 // degrees Celsius
}

// NoiseSource produces zero-mean unit-variance Gaussian samples
type NoiseSource interface {
	Gaussian() float64
}

// PolarNoise draws Gaussian samples with the polar Box-Muller method
type PolarNoise struct {
	rng   *rand.Rand
	spare float64
	has   bool
}

// NewPolarNoise creates a noise source seeded with seed
func NewPolarNoise(seed int64) *PolarNoise {
	return &PolarNoise{rng: rand.New(rand.NewSource(seed))}
}

// Gaussian returns the next sample
func (p *PolarNoise) Gaussian() float64 {
	if p.has {
		p.has = false
		return p.spare
	}
	var x1, x2, w float64
	for {
		x1 = 2*p.rng.Float64() - 1
		x2 = 2*p.rng.Float64() - 1
		w = x1*x1 + x2*x2
		if w > 0 && w < 1 {
			break
		}
	}
	w = math.Sqrt(-2 * math.Log(w) / w)
	p.spare = x2 * w
	p.has = true
	return x1 * w
}

// Barometer models static and dynamic pressure for a vehicle at altMSL
// metres with airspeed along the pitot axis. noise is added to the static
// pressure in Pa before conversion; gravity is the local magnitude.
func Barometer(altMSL, airspeed, noise, gravity float64) BaroReading {
	if gravity <= 0 {
		gravity = standardG
	}
	temperature := temperatureMSL - lapseRate*altMSL
	ratio := temperatureMSL / temperature
	pressure := pressureMSL/math.Pow(ratio, 5.256) + noise
	rho := densityMSL / math.Pow(ratio, 4.256)

	return BaroReading{
		AbsPressure:  pressure * 0.01,
		DiffPressure: 0.005 * rho * airspeed * airspeed,
		PressureAlt:  altMSL - noise/(gravity*rho),
		Temperature:  temperature - kelvinOffset,
	}
}
