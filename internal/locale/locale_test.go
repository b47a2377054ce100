package locale

import (
	"testing"
)

func TestSyncFailed(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"en", "sync failed"},
		{"", "sync failed"},
		{"en-US", "sync failed"},
		{"zh-CN", "同步失败"},
		{"zh", "同步失败"},
		{"fr", "sync failed"},
		{"not a language", "sync failed"},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			if got := SyncFailed(New(tt.lang)); got != tt.want {
				t.Errorf("SyncFailed(%q) = %q, want %q", tt.lang, got, tt.want)
			}
		})
	}
}

func TestFormat_Interpolates(t *testing.T) {
	f := New("zh-CN")
	if got := f.Format(KeyActionFailed, f.Format(KeySync)); got != "同步失败" {
		t.Errorf("Expected '同步失败', got %q", got)
	}

	f = New("en")
	if got := f.Format(KeyActionFailed, "upload"); got != "upload failed" {
		t.Errorf("Expected 'upload failed', got %q", got)
	}
}
