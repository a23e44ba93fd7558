// Package battery estimates remaining capacity from a measured cell voltage.
package battery

// Pair is one point of a discharge curve.
type Pair struct {
	MilliVolts uint16
	Capacity   uint8
}

// Table is a discharge curve. It must be sorted by MilliVolts in strictly
// descending order; Estimate does not check this.
type Table []Pair

// CR2032 is the coin cell curve averaged from the Energizer, Maxell and
// Panasonic datasheets. Capacity is in half-percent steps (200 = 100%), the
// unit of the battery percentage remaining attribute.
var CR2032 = Table{
	{3000, 200}, {2900, 160}, {2800, 120}, {2700, 80},
	{2600, 60}, {2500, 40}, {2400, 20}, {2000, 0},
}

// Estimate returns the capacity for mv by linear interpolation between the two
// table points around it. Voltages at or above the first point return the
// first capacity, voltages at or below the last point return the last one.
func Estimate(t Table, mv uint16) uint8 {
	if len(t) == 0 {
		return 0
	}
	for i, lower := range t {
		if mv <= lower.MilliVolts {
			continue
		}
		if i == 0 {
			return t[0].Capacity
		}
		higher := t[i-1]
		span := int(higher.MilliVolts) - int(lower.MilliVolts)
		c := int(lower.Capacity) + (int(mv)-int(lower.MilliVolts))*(int(higher.Capacity)-int(lower.Capacity))/span
		return clampU8(c)
	}
	return t[len(t)-1].Capacity
}

// Percent converts a half-percent capacity to whole percent.
func Percent(halfPercent uint8) uint8 {
	return halfPercent / 2
}

func clampU8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}
