// Package units implements the native-unit to reporting-unit conversion
// language: SI prefixes, compound rate/power expressions, additive offsets,
// and the fixed base-to-base tables the protocol defines.
package units

import (
	"fmt"
	"strconv"
	"strings"
)

// UnitError reports an unresolvable unit expression.
type UnitError struct {
	Native string
	Target string
	Reason string
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("units: cannot convert %q to %q: %s", e.Native, e.Target, e.Reason)
}

// Conversion is the precomputed affine map value' = (value*Factor+Offset)*Scale.
type Conversion struct {
	Factor float64
	Offset float64
	Scale  float64
}

// Apply converts one scalar value.
func (c Conversion) Apply(value float64) float64 {
	return (value*c.Factor + c.Offset) * c.Scale
}

// ApplyVector applies the conversion axis-wise to each component.
func (c Conversion) ApplyVector(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = c.Apply(v)
	}
	return out
}

var siPrefixes = map[string]float64{
	"MILLI": 1e-3,
	"CENTI": 1e-2,
	"DECI":  1e-1,
	"DECA":  1e1,
	"HECTO": 1e2,
	"KILO":  1e3,
	"MEGA":  1e6,
	"GIGA":  1e9,
	"MICRO": 1e-6,
	"NANO":  1e-9,
}

type baseConversion struct {
	factor float64
	offset float64
}

// baseToBase maps a (native, target) base-unit pair to an affine conversion,
// independent of any SI prefix on either side.
var baseToBase = map[[2]string]baseConversion{
	{"INCH", "MILLIMETER"}:     {factor: 25.4},
	{"MILLIMETER", "INCH"}:     {factor: 1 / 25.4},
	{"FOOT", "MILLIMETER"}:     {factor: 304.8},
	{"MILLIMETER", "FOOT"}:     {factor: 1 / 304.8},
	{"RADIAN", "DEGREE"}:       {factor: 180 / 3.14159265358979},
	{"DEGREE", "RADIAN"}:       {factor: 3.14159265358979 / 180},
	{"POUND/INCH^2", "PASCAL"}: {factor: 6894.757293168},
	{"PASCAL", "POUND/INCH^2"}: {factor: 1 / 6894.757293168},
	{"GALLON", "LITER"}:        {factor: 3.785411784},
	{"LITER", "GALLON"}:        {factor: 1 / 3.785411784},
	{"PINT", "LITER"}:          {factor: 0.473176473},
	{"LITER", "PINT"}:          {factor: 1 / 0.473176473},
	{"FOOT^3", "MILLIMETER^3"}: {factor: 28316846.592},
	{"MILLIMETER^3", "FOOT^3"}: {factor: 1 / 28316846.592},
	{"INCH^3", "MILLIMETER^3"}: {factor: 16387.064},
	{"MILLIMETER^3", "INCH^3"}: {factor: 1 / 16387.064},
	{"KILOWATT_HOUR", "WATT_SECOND"}: {factor: 3.6e6},
	{"WATT_SECOND", "KILOWATT_HOUR"}: {factor: 1 / 3.6e6},
	{"FOOT^2", "MILLIMETER^2"}: {factor: 92903.04},
	{"MILLIMETER^2", "FOOT^2"}: {factor: 1 / 92903.04},
	{"FAHRENHEIT", "CELSIUS"}: {factor: 5.0 / 9.0, offset: -32 * 5.0 / 9.0},
	{"CELSIUS", "FAHRENHEIT"}: {factor: 9.0 / 5.0, offset: 32},
}

// parsed is a unit expression broken into prefix (possibly empty), base
// name, and an optional exponent/rate suffix carried verbatim for matching
// the base table (compound forms like "POUND/INCH^2" are registered whole).
type parsed struct {
	prefix  string
	base    string
	compound string // full expression with prefix stripped, used as table key
}

// namedCompoundUnits collects every unit string that appears literally as a
// baseToBase key, e.g. "MILLIMETER", "MILLIMETER^2", "MILLIMETER^3". The
// §4.4 base table keys the millimeter side of length/area/volume entries on
// these exact strings, not on "METER" plus a MILLI prefix, so parseExpr must
// not strip an SI prefix out of a string that is itself one of these keys.
var namedCompoundUnits = func() map[string]bool {
	set := make(map[string]bool)
	for pair := range baseToBase {
		set[pair[0]] = true
		set[pair[1]] = true
	}
	return set
}()

func parseExpr(expr string) parsed {
	expr = strings.ToUpper(strings.TrimSpace(expr))
	if namedCompoundUnits[expr] {
		return parsed{base: expr, compound: expr}
	}
	for name := range siPrefixes {
		if strings.HasPrefix(expr, name) {
			rest := strings.TrimPrefix(expr, name)
			if rest != "" {
				return parsed{prefix: name, base: rest, compound: rest}
			}
		}
	}
	return parsed{base: expr, compound: expr}
}

// Resolve builds the Conversion from native to target, folding in
// nativeScale (the data item's own reported-value scale factor). Unknown
// unit expressions fail with UnitError; same base with only prefixes
// differing resolves via SI factors alone.
func Resolve(native, target string, nativeScale float64) (Conversion, error) {
	if nativeScale == 0 {
		nativeScale = 1
	}
	n := parseExpr(native)
	tgt := parseExpr(target)

	nFactor := 1.0
	if n.prefix != "" {
		nFactor = siPrefixes[n.prefix]
	}
	tFactor := 1.0
	if tgt.prefix != "" {
		tFactor = siPrefixes[tgt.prefix]
	}

	if n.compound == tgt.compound {
		return Conversion{Factor: nFactor / tFactor, Offset: 0, Scale: nativeScale}, nil
	}

	base, ok := baseToBase[[2]string{n.compound, tgt.compound}]
	if !ok {
		return Conversion{}, &UnitError{Native: native, Target: target, Reason: "no known base conversion"}
	}
	return Conversion{
		Factor: nFactor * base.factor / tFactor,
		Offset: base.offset / tFactor,
		Scale:  nativeScale,
	}, nil
}

// parseRate splits a compound rate expression "A/B" into its two operands,
// used by callers that need to build velocity/acceleration conversions by
// composing a length conversion with a time conversion.
func parseRate(expr string) (numerator, denominator string, ok bool) {
	parts := strings.SplitN(expr, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// parsePower extracts the base and integer exponent from a "UNIT^n" form.
func parsePower(expr string) (base string, exponent int, ok bool) {
	idx := strings.IndexByte(expr, '^')
	if idx < 0 {
		return expr, 1, false
	}
	n, err := strconv.Atoi(expr[idx+1:])
	if err != nil {
		return expr, 1, false
	}
	return expr[:idx], n, true
}
