package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type classified struct{}

func (classified) Error() string     { return "custom" }
func (classified) ErrorKind() string { return "custom_kind" }

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped unsupported", fmt.Errorf("decode: %w", ErrUnsupportedFormat), KindUnsupportedFormat},
		{"corrupt", ErrCorruptData, KindCorruptData},
		{"processing", fmt.Errorf("remove: %w", ErrProcessing), KindProcessing},
		{"deadline", fmt.Errorf("encode: %w", context.DeadlineExceeded), KindTimeout},
		{"store", fmt.Errorf("put: %w", ErrStoreUnavailable), KindStoreUnavailable},
		{"not found", ErrNotFound, KindNotFound},
		{"classifier wins", fmt.Errorf("x: %w", classified{}), "custom_kind"},
		{"unknown", errors.New("boom"), KindInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("ErrorKind = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeWearDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	in := time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC)
	got := NormalizeWearDate(in, jakarta)
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, jakarta)
	if !got.Equal(want) {
		t.Fatalf("NormalizeWearDate = %s, want %s", got, want)
	}
	if utc := NormalizeWearDate(in, nil); utc.Hour() != 0 || utc.Day() != 14 {
		t.Fatalf("NormalizeWearDate(nil loc) = %s", utc)
	}
}

func TestColorTextRoundTrip(t *testing.T) {
	c, err := ParseColor("#A0b1C2")
	if err != nil {
		t.Fatalf("ParseColor: %v", err)
	}
	if c.Hex() != "#a0b1c2" {
		t.Fatalf("Hex = %q", c.Hex())
	}
	if _, err := ParseColor("#12345"); err == nil {
		t.Fatal("expected short color to fail")
	}
}
