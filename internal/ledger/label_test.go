package ledger

import (
	"errors"
	"reflect"
	"testing"
)

func TestFormatAndParseLabelRoundTrip(t *testing.T) {
	label := FormatLabel("QR-123-abc", "qr-code")
	if label != "QR-123-abc:qr-code" {
		t.Fatalf("unexpected label: %s", label)
	}
	value, tag := ParseLabel(label)
	if value != "QR-123-abc" || tag != "qr-code" {
		t.Fatalf("unexpected parse result: value=%s tag=%s", value, tag)
	}
}

func TestParseLabelSplitsAtFirstColon(t *testing.T) {
	value, tag := ParseLabel("CO.COM.SVB:TRX:123")
	if value != "CO.COM.SVB" {
		t.Fatalf("expected value up to first colon, got %s", value)
	}
	if tag != "TRX:123" {
		t.Fatalf("expected remainder as tag, got %s", tag)
	}
}

func TestParseLabelWithoutColon(t *testing.T) {
	value, tag := ParseLabel("bare-value")
	if value != "bare-value" || tag != "" {
		t.Fatalf("unexpected parse result: value=%s tag=%s", value, tag)
	}
}

func TestAnchorHandlesFromLabelsSkipsReservedAndDuplicates(t *testing.T) {
	labels := []string{
		"QR-123-abc:qr-code",
		"TXID-42:merchant-txid",
		"QR-123-abc:qr-code",
		"QR-456-def:qr-code",
		":qr-code",
	}
	got := AnchorHandlesFromLabels(labels)
	want := []string{"QR-123-abc", "QR-456-def"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected handles: got %v want %v", got, want)
	}
}

func TestAnchorHandlesFromLabelsEmpty(t *testing.T) {
	if got := AnchorHandlesFromLabels(nil); len(got) != 0 {
		t.Fatalf("expected no handles, got %v", got)
	}
}

func TestErrorMapsToSentinels(t *testing.T) {
	notFound := &Error{Status: 404, Reason: "record.not-found"}
	if !errors.Is(notFound, ErrNotFound) {
		t.Fatal("expected 404 to match ErrNotFound")
	}
	conflict := &Error{Status: 409, Reason: "CONFLICT"}
	if !errors.Is(conflict, ErrConflict) {
		t.Fatal("expected 409 to match ErrConflict")
	}
	if errors.Is(notFound, ErrConflict) {
		t.Fatal("404 must not match ErrConflict")
	}
}

func TestIsDuplicate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"conflict status", &Error{Status: 409}, true},
		{"conflict reason", &Error{Status: 400, Reason: "CONFLICT"}, true},
		{"duplicate message", errors.New("record duplicate key"), true},
		{"already exists message", errors.New("Intent Already Exists"), true},
		{"plain failure", &Error{Status: 500, Reason: "internal"}, false},
		{"unrelated error", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicate(tc.err); got != tc.want {
				t.Fatalf("IsDuplicate(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
