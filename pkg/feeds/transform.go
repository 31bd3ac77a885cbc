package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// ParseFloat coerces an upstream value to float64. Numbers pass through.
// Strings yield their longest leading decimal number, so "72.5F" is 72.5.
// Anything else, including strings with no leading number and missing
// fields, becomes NaN.
func ParseFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		return parseString(n.String())
	case string:
		return parseString(n)
	default:
		return math.NaN()
	}
}

const infinity = "Infinity"

// parseString reads the longest prefix of s, after leading whitespace, of the
// form [+-](digits[.digits]|.digits)[(e|E)[+-]digits] or [+-]Infinity.
func parseString(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if strings.HasPrefix(s[i:], infinity) {
		if s[0] == '-' {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return math.NaN()
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}

	// Out-of-range values come back as ±Inf or 0 with a range error; keep them.
	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Milliseconds rescales an upstream seconds timestamp to milliseconds.
func Milliseconds(v interface{}) float64 {
	return ParseFloat(v) * 1000
}

// SensorID formats the synthetic sensor identifier for a sequence value.
func SensorID(n int) string {
	return fmt.Sprintf("probe-%04d", n)
}

// TransformMarket adds time_stamp in milliseconds and passes every other
// field through unchanged.
func TransformMarket(raw types.RawMessage) types.NormalizedRecord {
	rec := raw.Clone()
	rec["time_stamp"] = Milliseconds(raw["timestamp"])
	return rec
}

var weatherNumeric = []string{"temp_fahrenheit", "ultraviolet_level", "wind_direction"}

// TransformWeather coerces the numeric weather fields to float64.
func TransformWeather(raw types.RawMessage) types.NormalizedRecord {
	rec := raw.Clone()
	for _, k := range weatherNumeric {
		rec[k] = ParseFloat(raw[k])
	}
	return rec
}

var sensorNumeric = []string{"ambient_temperature", "humidity", "photosensor", "radiation_level"}

// SensorTransformer replaces the upstream sensor id with a small set of
// stable synthetic ids so history accumulates per probe in the cache.
type SensorTransformer struct {
	counter *SequenceCounter
}

// NewSensorTransformer returns a transformer owning counter. A nil counter
// starts a fresh sequence at 0.
func NewSensorTransformer(counter *SequenceCounter) *SensorTransformer {
	if counter == nil {
		counter = &SequenceCounter{}
	}
	return &SensorTransformer{counter: counter}
}

// Transform rescales the timestamp, coerces the readings and assigns the next
// synthetic sensor_uuid.
func (s *SensorTransformer) Transform(raw types.RawMessage) types.NormalizedRecord {
	rec := raw.Clone()
	rec["time_stamp"] = Milliseconds(raw["timestamp"])
	for _, k := range sensorNumeric {
		rec[k] = ParseFloat(raw[k])
	}
	rec["sensor_uuid"] = SensorID(s.counter.Next())
	return rec
}
