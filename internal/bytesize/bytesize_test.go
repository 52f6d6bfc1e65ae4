package bytesize

import "testing"

func TestParse_PlainNumbers(t *testing.T) {
	cases := map[string]ByteSize{
		"0":          0,
		"1024":       1024,
		"1073741824": 1 << 30,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParse_BinaryUnits(t *testing.T) {
	cases := map[string]ByteSize{
		"1Ki":    KiB,
		"500Mi":  500 * MiB,
		"2GiB":   2 * GiB,
		"1.5Gi":  ByteSize(1.5 * float64(GiB)),
		"3TiB":   3 * TiB,
		" 10Mi ": 10 * MiB,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParse_DecimalUnits(t *testing.T) {
	cases := map[string]ByteSize{
		"1K":    KB,
		"100MB": 100 * MB,
		"2G":    2 * GB,
		"7b":    7,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("Parse(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "  ", "Mi", "12Qi", "abc", "-5Mi"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("250Mi")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if b != 250*MiB {
		t.Errorf("got %d, want %d", b, 250*MiB)
	}

	if err := b.UnmarshalText([]byte("nonsense")); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestString(t *testing.T) {
	cases := map[ByteSize]string{
		512:       "512B",
		2 * KiB:   "2.00KiB",
		500 * MiB: "500.00MiB",
		3 * GiB:   "3.00GiB",
	}
	for in, want := range cases {
		if got := in.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", uint64(in), got, want)
		}
	}
}
