package safeurl

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://hooks.example.com/pagepatch", nil},
		{"http://93.184.216.34/hook", nil},
		{"ftp://example.com/x", ErrUnsafeScheme},
		{"file:///etc/passwd", ErrUnsafeScheme},
		{"http://127.0.0.1:8080/hook", ErrPrivateAddress},
		{"http://10.1.2.3/hook", ErrPrivateAddress},
		{"http://192.168.1.5/hook", ErrPrivateAddress},
		{"http://169.254.169.254/latest/meta-data", ErrPrivateAddress},
		{"http://[::1]/hook", ErrPrivateAddress},
		{"http://0.0.0.0/hook", ErrPrivateAddress},
	}
	for _, tt := range tests {
		err := Validate(tt.url)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("Validate(%q): %v", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Validate(%q): got %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidate_NoHost(t *testing.T) {
	if err := Validate("http:///path-only"); err == nil {
		t.Error("Validate: got nil for URL without host")
	}
}
