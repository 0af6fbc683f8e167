package samplecode

import (
	"errors"
	"testing"
)

func TestV1(t *testing.T) {
	for _, v := range []struct {
		Code  string
		Index string
	}{
		{"SI_N701_SI_S502", "i7_N701_i5_S502"},
		{"SI_N701_SI_S502_plate3_extra", "i7_N701_i5_S502"},
		{" a_AAGT_b_CCTA ", "i7_AAGT_i5_CCTA"},
	} {
		code, err := Parse(v.Code)
		if err != nil {
			t.Errorf("%q: %v", v.Code, err)
			continue
		}
		if got := code.IndexString(); got != v.Index {
			t.Errorf("%q: got %q, expected %q", v.Code, got, v.Index)
		}
	}
}

func TestV1Malformed(t *testing.T) {
	for _, code := range []string{
		"",
		"SI_N701",
		"SI_N701_SI",
		"SI__SI_S502",
		"SI_N701_SI_",
	} {
		_, err := Parse(code)

		var mce *MalformedCodeError
		if !errors.As(err, &mce) {
			t.Errorf("%q: expected MalformedCodeError, got %v", code, err)
		}
	}
}

func TestCustomFormat(t *testing.T) {
	f := Format{Delimiter: "-", I7Field: 1, I5Field: 3}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}

	code, err := f.Parse("N701-x-S502")
	if err != nil {
		t.Fatal(err)
	}
	if got := code.IndexString(); got != "i7_N701_i5_S502" {
		t.Errorf("Got %q", got)
	}

	// The V1 reading of the same code must not silently succeed.
	if _, err := V1.Parse("N701-x-S502"); err == nil {
		t.Error("Expected V1 to reject a dash-delimited code")
	}
}

func TestValidate(t *testing.T) {
	for _, f := range []Format{
		{Delimiter: "", I7Field: 2, I5Field: 4},
		{Delimiter: "_", I7Field: 0, I5Field: 4},
		{Delimiter: "_", I7Field: 2, I5Field: 2},
	} {
		if err := f.Validate(); err == nil {
			t.Errorf("Expected %s to be invalid", f)
		}
	}

	if err := V1.Validate(); err != nil {
		t.Error(err)
	}
}
