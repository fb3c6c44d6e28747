package cv

import "strconv"

// Codec converts between a key's string payload and a typed value T.
// Parse must be strict: a payload that cannot be represented as T is an
// error, surfaced as a ConversionError at caching time.
type Codec[T any] struct {
	Parse  func(string) (T, error)
	Format func(T) string
}

// StringCodec passes payloads through unchanged.
func StringCodec() Codec[string] {
	return Codec[string]{
		Parse:  func(s string) (string, error) { return s, nil },
		Format: func(s string) string { return s },
	}
}

// IntCodec parses payloads with strconv.Atoi.
func IntCodec() Codec[int] {
	return Codec[int]{
		Parse:  strconv.Atoi,
		Format: strconv.Itoa,
	}
}

// BoolCodec parses payloads with strconv.ParseBool.
func BoolCodec() Codec[bool] {
	return Codec[bool]{
		Parse:  strconv.ParseBool,
		Format: strconv.FormatBool,
	}
}

// Float64Codec parses payloads with strconv.ParseFloat.
func Float64Codec() Codec[float64] {
	return Codec[float64]{
		Parse: func(s string) (float64, error) {
			return strconv.ParseFloat(s, 64)
		},
		Format: func(f float64) string {
			return strconv.FormatFloat(f, 'g', -1, 64)
		},
	}
}
