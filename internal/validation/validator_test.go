package validation

import (
	"errors"
	"strings"
	"testing"

	"SmartMix/internal/mix"
)

func TestStructValid(t *testing.T) {
	d := mix.Default()
	if err := Struct(&d); err != nil {
		t.Fatalf("default mix should validate: %v", err)
	}
}

func TestStructOutOfRange(t *testing.T) {
	d := mix.Default()
	d.Cement = 900
	d.WCRatio = 0.1

	err := Struct(&d)
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %+v", verr.Fields)
	}
	msg := verr.Error()
	if !strings.Contains(msg, "cement must satisfy lte=600") {
		t.Fatalf("expected json field name in message, got %s", msg)
	}
	if !strings.Contains(msg, "wc_ratio") {
		t.Fatalf("expected wc_ratio in message, got %s", msg)
	}
}

func TestGetSingleton(t *testing.T) {
	if Get() != Get() {
		t.Fatal("Get should return the same validator")
	}
}
