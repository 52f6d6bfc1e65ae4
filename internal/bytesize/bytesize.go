// Package bytesize provides a byte-count type that unmarshals from
// human-readable strings, used for cache region budgets in configuration.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes that can be parsed from strings like
// "500Mi", "2G", "100MB" or plain numbers.
//
// Binary suffixes (Ki, Mi, Gi, Ti) multiply by 1024; decimal suffixes
// (K, M, G, T, optionally followed by B) multiply by 1000. A bare number
// or a "B" suffix is taken as bytes.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var suffixes = []struct {
	unit string
	mult ByteSize
}{
	{"tib", TiB}, {"gib", GiB}, {"mib", MiB}, {"kib", KiB},
	{"ti", TiB}, {"gi", GiB}, {"mi", MiB}, {"ki", KiB},
	{"tb", TB}, {"gb", GB}, {"mb", MB}, {"kb", KB},
	{"t", TB}, {"g", GB}, {"m", MB}, {"k", KB},
	{"b", B},
}

// Parse converts a human-readable size string into a ByteSize.
func Parse(s string) (ByteSize, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	mult := B
	num := trimmed
	for _, sfx := range suffixes {
		if strings.HasSuffix(trimmed, sfx.unit) {
			mult = sfx.mult
			num = strings.TrimSpace(strings.TrimSuffix(trimmed, sfx.unit))
			break
		}
	}
	if num == "" {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("invalid byte size %q", s)
		}
		return ByteSize(f * float64(mult)), nil
	}

	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return ByteSize(n) * mult, nil
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize fields can
// be decoded from config files via mapstructure.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the size with the largest fitting binary unit.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", uint64(b))
	}
}

// Int64 returns the size as an int64 for filesystem arithmetic.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
