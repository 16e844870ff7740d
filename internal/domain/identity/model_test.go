package identity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseUraNumber_Padding(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "00000001"},
		{"1234", "00001234"},
		{"12345678", "12345678"},
		{"00000042", "00000042"},
	}
	for _, c := range cases {
		ura, err := ParseUraNumber(c.in)
		if err != nil {
			t.Fatalf("ParseUraNumber(%q) failed: %v", c.in, err)
		}
		if ura.String() != c.want {
			t.Errorf("ParseUraNumber(%q) = %q, want %q", c.in, ura.String(), c.want)
		}
	}
}

func TestParseUraNumber_Rejects(t *testing.T) {
	for _, in := range []string{"", "123456789", "12a45", "-1234", "12 34"} {
		if _, err := ParseUraNumber(in); !errors.Is(err, ErrInvalidUraNumber) {
			t.Errorf("ParseUraNumber(%q): expected ErrInvalidUraNumber, got %v", in, err)
		}
	}
}

func TestUraNumberFromInt(t *testing.T) {
	ura, err := UraNumberFromInt(1234)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ura.String() != "00001234" {
		t.Errorf("expected 00001234, got %s", ura.String())
	}

	if _, err := UraNumberFromInt(-1); !errors.Is(err, ErrInvalidUraNumber) {
		t.Errorf("expected ErrInvalidUraNumber for negative input, got %v", err)
	}
	if _, err := UraNumberFromInt(123456789); !errors.Is(err, ErrInvalidUraNumber) {
		t.Errorf("expected ErrInvalidUraNumber for 9 digits, got %v", err)
	}
}

func TestUraNumber_Equality(t *testing.T) {
	a, _ := ParseUraNumber("1234")
	b, _ := ParseUraNumber("00001234")
	if a != b {
		t.Errorf("expected %v == %v", a, b)
	}
}

func TestUraNumber_JSONRoundTrip(t *testing.T) {
	ura, _ := ParseUraNumber("13873620")
	data, err := json.Marshal(ura)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"13873620"` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var back UraNumber
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != ura {
		t.Errorf("round trip mismatch: %v != %v", back, ura)
	}

	var bad UraNumber
	if err := json.Unmarshal([]byte(`"123456789"`), &bad); err == nil {
		t.Error("expected unmarshal of a 9-digit ura to fail")
	}
}

func TestParseBSN_Valid(t *testing.T) {
	// Official test numbers that satisfy the elfproef.
	for _, in := range []string{"200060429", "123456782", "111222333"} {
		if _, err := ParseBSN(in); err != nil {
			t.Errorf("ParseBSN(%q) failed: %v", in, err)
		}
	}
}

func TestParseBSN_Invalid(t *testing.T) {
	cases := []string{
		"123456789", // fails elfproef
		"12345678",  // too short
		"1234567890",
		"12345678a",
		"",
	}
	for _, in := range cases {
		if _, err := ParseBSN(in); !errors.Is(err, ErrInvalidBSN) {
			t.Errorf("ParseBSN(%q): expected ErrInvalidBSN, got %v", in, err)
		}
	}
}

func TestBSN_Hash(t *testing.T) {
	bsn, err := ParseBSN("200060429")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := bsn.Hash()
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
	if h != bsn.Hash() {
		t.Error("hash must be deterministic")
	}
}

func TestNewDataDomain(t *testing.T) {
	d, err := NewDataDomain("ImagingStudy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "ImagingStudy" {
		t.Errorf("expected ImagingStudy, got %s", d)
	}

	for _, in := range []string{"", "   "} {
		if _, err := NewDataDomain(in); !errors.Is(err, ErrEmptyDataDomain) {
			t.Errorf("NewDataDomain(%q): expected ErrEmptyDataDomain, got %v", in, err)
		}
	}
}

func TestPersonalIdentifier_JSONShape(t *testing.T) {
	bsn, _ := ParseBSN("200060429")
	pid := NewBSNIdentifier(bsn)

	data, err := json.Marshal(pid)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"landCode":"NL","type":"BSN","value":"200060429"}`
	if string(data) != want {
		t.Errorf("unexpected JSON:\n got %s\nwant %s", data, want)
	}
}
