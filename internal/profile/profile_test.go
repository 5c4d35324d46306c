package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/shiftsync/internal/config"
)

func TestDirUsesHomeEnv(t *testing.T) {
	base := t.TempDir()
	t.Setenv(HomeEnv, base)

	if got, want := Dir("work"), filepath.Join(base, "profiles", "work"); got != want {
		t.Errorf("Dir(work) = %q, want %q", got, want)
	}
	if got := SocketPath("work"); !strings.HasSuffix(got, filepath.Join("profiles", "work", "daemon.sock")) {
		t.Errorf("SocketPath(work) = %q", got)
	}
	if got := StorePath("work"); !strings.HasSuffix(got, filepath.Join("profiles", "work", "store.db")) {
		t.Errorf("StorePath(work) = %q", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if err := EnsureDir("main"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(Dir("main"))
	if err != nil {
		t.Fatalf("profile dir not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("dir permission = %o, want 0700", perm)
	}
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv(NameEnv, "")

	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() = %q, want %q", got, DefaultName)
	}

	if err := config.Save(GlobalConfigPath(), &config.Global{ActiveProfile: "shared"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "shared" {
		t.Errorf("Resolve() with global config = %q, want shared", got)
	}

	t.Setenv(NameEnv, "fromenv")
	if got := Resolve(""); got != "fromenv" {
		t.Errorf("Resolve() with env = %q, want fromenv", got)
	}

	if got := Resolve("flag"); got != "flag" {
		t.Errorf("Resolve(flag) = %q, want flag", got)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "site42", false},
		{"valid with hyphen", "night-shift", false},
		{"valid with underscore", "night_shift", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "night shift", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "a/b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
