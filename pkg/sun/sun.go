// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sun computes the altitude of the sun above the horizon.
//
// The low-precision solar coordinates from the Astronomical Almanac are
// used; they are good to about 0.01 degrees between 1950 and 2050, far
// below what a darkness threshold needs.
package sun

import (
	"math"
	"time"
)

// AltitudeFunc returns the sun altitude in degrees at a location.
type AltitudeFunc func(lat, lon float64, t time.Time) float64

var j2000 = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

const (
	deg = math.Pi / 180
	rad = 180 / math.Pi
)

// Altitude returns the geometric altitude of the sun's centre in degrees
// for latitude lat and east longitude lon. Refraction is ignored.
func Altitude(lat, lon float64, t time.Time) float64 {
	d := t.UTC().Sub(j2000).Hours() / 24

	g := normalize(357.529+0.98560028*d) * deg
	q := normalize(280.459 + 0.98564736*d)
	l := normalize(q+1.915*math.Sin(g)+0.020*math.Sin(2*g)) * deg
	e := (23.439 - 0.00000036*d) * deg

	ra := math.Atan2(math.Cos(e)*math.Sin(l), math.Cos(l))
	dec := math.Asin(math.Sin(e) * math.Sin(l))

	gmst := math.Mod(18.697374558+24.06570982441908*d, 24)
	ha := (gmst*15+lon)*deg - ra

	phi := lat * deg
	alt := math.Asin(math.Sin(phi)*math.Sin(dec) + math.Cos(phi)*math.Cos(dec)*math.Cos(ha))
	return alt * rad
}

func normalize(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}
