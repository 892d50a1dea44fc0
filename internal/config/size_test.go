package config

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"512", 512},
		{"512B", 512},
		{"4KiB", 4096},
		{"4KB", 4000},
		{"1 MiB", 1 << 20},
		{" 2kib ", 2048},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if err != nil {
			t.Errorf("ParseSize(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"lots", "12XB", "-5"} {
		if _, err := ParseSize(in); err == nil {
			t.Errorf("ParseSize(%q) accepted garbage", in)
		}
	}
}

func TestParseSizeRejectsHuge(t *testing.T) {
	if _, err := ParseSize("8GiB"); err == nil {
		t.Fatal("expected error for size beyond int32")
	}
}

func TestSizeBytes(t *testing.T) {
	if SizeBytes("1KiB") != 1024 {
		t.Fatal("SizeBytes(1KiB) != 1024")
	}
	if SizeBytes("nope") != 0 {
		t.Fatal("SizeBytes should yield 0 for invalid input")
	}
}
