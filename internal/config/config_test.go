package config

import "testing"

func TestDefault_Validates(t *testing.T) {
	if err := Validate(Default(), "1.0.0"); err != nil {
		t.Fatalf("default options should validate against their own floor: %v", err)
	}
}

func TestValidate_RejectsOlderEngine(t *testing.T) {
	opts := Default()
	opts.MinCompatVersion = "2.0.0"

	if err := Validate(opts, "1.5.0"); err == nil {
		t.Fatal("expected an error for an engine version below MinCompatVersion")
	}
}

func TestValidate_RejectsNonPositiveDepth(t *testing.T) {
	opts := Default()
	opts.MaxInterruptDepth = 0

	if err := Validate(opts, "1.0.0"); err == nil {
		t.Fatal("expected an error for a zero MaxInterruptDepth")
	}
}

func TestValidate_RejectsMalformedVersion(t *testing.T) {
	opts := Default()

	if err := Validate(opts, "not-a-version"); err == nil {
		t.Fatal("expected an error for a malformed engine version")
	}
}

func TestValidate_AcceptsNewerEngine(t *testing.T) {
	opts := Default()
	opts.MinCompatVersion = "1.0.0"

	if err := Validate(opts, "1.4.2"); err != nil {
		t.Fatalf("expected a newer engine version to satisfy the floor: %v", err)
	}
}
