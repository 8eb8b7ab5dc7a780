package providers

import (
	"errors"
	"testing"
)

func TestParseImage(t *testing.T) {
	cases := []struct {
		in      string
		mime    string
		data    string
		wantErr bool
	}{
		{in: "data:image/webp;base64,UklGRabc", mime: "image/webp", data: "UklGRabc"},
		{in: "/9j/4AAQSkZJRg", mime: "image/jpeg", data: "/9j/4AAQSkZJRg"},
		{in: "iVBORw0KGgoAAAANSUhEUg", mime: "image/png", data: "iVBORw0KGgoAAAANSUhEUg"},
		{in: "R0lGODlhAQABAAAAACw=", mime: "image/gif", data: "R0lGODlhAQABAAAAACw="},
		{in: "data:;base64,/9j/AAA", mime: "image/jpeg", data: "/9j/AAA"},
		{in: "QUJDRA==", mime: "image/png", data: "QUJDRA=="},
		{in: "data:image/png;base64", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		img, err := ParseImage(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if img.MIMEType != tc.mime || img.Data != tc.data {
			t.Fatalf("%q: got %+v", tc.in, img)
		}
	}
}

func TestEncodeImageDetectsType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	img := EncodeImage(png)
	if img.MIMEType != "image/png" {
		t.Fatalf("expected png, got %q", img.MIMEType)
	}
	if img.DataURL()[:22] != "data:image/png;base64," {
		t.Fatalf("unexpected data url %q", img.DataURL())
	}
	if got := EncodeImage([]byte("plain text")).MIMEType; got != "image/jpeg" {
		t.Fatalf("unknown bytes default to jpeg, got %q", got)
	}
}

func TestClampImageCount(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 4: 4, 10: 4} {
		if got := ClampImageCount(in); got != want {
			t.Fatalf("ClampImageCount(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDescribeUsesSentinels(t *testing.T) {
	err := &APIError{Provider: "gemini", Status: 429, Message: "quota", Kind: ErrQuotaExceeded}
	if got := Describe(err); got != "The API quota is exhausted. Try again later." {
		t.Fatalf("unexpected description %q", got)
	}
	plain := errors.New("dial tcp: timeout")
	if got := Describe(plain); got != "dial tcp: timeout" {
		t.Fatalf("unexpected description %q", got)
	}
	model := &APIError{Provider: "openrouter", Status: 400, Message: `"x": Model not found`, Kind: ErrModelNotFound}
	if got := Describe(model); got != `Model not found or unavailable: "x": Model not found` {
		t.Fatalf("unexpected description %q", got)
	}
}
