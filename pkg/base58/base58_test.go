// pkg/base58/base58_test.go
package base58

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	mrtron "github.com/mr-tron/base58"
)

func TestEncodeKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"empty", []byte{}, ""},
		{"singleZero", []byte{0}, "1"},
		{"allZeros", []byte{0, 0, 0, 0}, "1111"},
		{"hello", []byte("hello"), "Cn8eVZg"},
		{"leadingZeroHello", append([]byte{0}, []byte("hello")...), "1Cn8eVZg"},
		{"maxByte", []byte{0xFF}, "5Q"},
		{"solanaSystemProgram", make([]byte, 32), strings.Repeat("1", 32)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Encode(c.in); got != c.want {
				t.Errorf("Encode(%x) = %q; want %q", c.in, got, c.want)
			}
		})
	}
}

func TestDecodeKnownVectors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []byte
	}{
		{"empty", "", []byte{}},
		{"singleOne", "1", []byte{0}},
		{"hello", "Cn8eVZg", []byte("hello")},
		{"leadingOnes", "11Cn8eVZg", append([]byte{0, 0}, []byte("hello")...)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Decode(c.in)
			if err != nil {
				t.Fatalf("Decode(%q): %v", c.in, err)
			}
			if !bytes.Equal(got, c.want) {
				t.Errorf("Decode(%q) = %x; want %x", c.in, got, c.want)
			}
		})
	}
}

func TestDecodeInvalidCharacter(t *testing.T) {
	for _, in := range []string{"0", "O", "I", "l", "abc!def", "Cn8eVZg "} {
		_, err := Decode(in)
		if err == nil {
			t.Errorf("Decode(%q): expected error, got nil", in)
			continue
		}
		var invErr *InvalidCharacterError
		if !errors.As(err, &invErr) {
			t.Errorf("Decode(%q): error type = %T; want *InvalidCharacterError", in, err)
		}
	}
}

// Round-trip: decode(encode(b)) == b для случайных входов и крайних случаев.
func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	inputs := [][]byte{
		{},
		{0},
		{0, 0, 0},
		{0xFF, 0xFF, 0xFF, 0xFF},
		bytes.Repeat([]byte{0}, 32),
	}
	for i := 0; i < 200; i++ {
		n := rng.Intn(40)
		b := make([]byte, n)
		rng.Read(b)
		// часть входов — с ведущими нулями
		if n > 2 && i%3 == 0 {
			b[0], b[1] = 0, 0
		}
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		enc := Encode(in)
		dec, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(%x)) error: %v", in, err)
		}
		if !bytes.Equal(dec, in) {
			t.Errorf("round-trip: got %x; want %x (encoded %q)", dec, in, enc)
		}
	}
}

// Encode должен давать ровно k ведущих '1' при k ведущих нулевых байтах.
func TestLeadingZeroMapping(t *testing.T) {
	for k := 0; k <= 8; k++ {
		in := append(bytes.Repeat([]byte{0}, k), 0xAB, 0xCD)
		enc := Encode(in)
		ones := 0
		for ones < len(enc) && enc[ones] == '1' {
			ones++
		}
		if ones != k {
			t.Errorf("k=%d: got %d leading '1's in %q", k, ones, enc)
		}
	}
}

// Сверка с эталонной реализацией mr-tron/base58.
func TestAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		// эталон отвергает пустую строку, пустой вход покрыт выше
		b := make([]byte, 1+rng.Intn(63))
		rng.Read(b)
		if i%4 == 0 {
			b[0] = 0
		}

		want := mrtron.Encode(b)
		if got := Encode(b); got != want {
			t.Fatalf("Encode(%x) = %q; reference = %q", b, got, want)
		}

		dec, err := Decode(want)
		if err != nil {
			t.Fatalf("Decode(%q): %v", want, err)
		}
		refDec, err := mrtron.Decode(want)
		if err != nil {
			t.Fatalf("reference Decode(%q): %v", want, err)
		}
		if !bytes.Equal(dec, refDec) {
			t.Fatalf("Decode(%q) = %x; reference = %x", want, dec, refDec)
		}
	}
}

func TestIsValidPubkey(t *testing.T) {
	valid32 := Encode(bytes.Repeat([]byte{0x11}, 32))

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", valid32, true},
		{"systemProgram", strings.Repeat("1", 32), true},
		{"tooShort", "abc", false},
		{"tooLong", strings.Repeat("2", 45), false},
		{"invalidChar", strings.Repeat("0", 40), false},
		{"decodesTo33Bytes", strings.Repeat("1", 33), false},
		{"decodesTo31Bytes", Encode(bytes.Repeat([]byte{0x11}, 31)), false},
		{"empty", "", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsValidPubkey(c.in); got != c.want {
				t.Errorf("IsValidPubkey(%q) = %v; want %v", c.in, got, c.want)
			}
		})
	}
}
