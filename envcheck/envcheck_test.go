package envcheck

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
)

type fakeRunner struct {
	goVersion string
	gomod     string
	envErr    error
	// get handles "go get <target>".
	get   func(target string) error
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	switch {
	case call == "go env GOVERSION GOMOD":
		if f.envErr != nil {
			return nil, f.envErr
		}
		return []byte(f.goVersion + "\n" + f.gomod + "\n"), nil
	case len(args) == 2 && args[0] == "get":
		if f.get == nil {
			return nil, errors.New("unexpected go get")
		}
		return nil, f.get(args[1])
	}
	return nil, fmt.Errorf("unexpected command %q", call)
}

func writeGoMod(t *testing.T, dir string, requires ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("module example.com/app\n\ngo 1.23\n")
	if len(requires) > 0 {
		b.WriteString("\nrequire (\n")
		for _, r := range requires {
			b.WriteString("\t" + r + "\n")
		}
		b.WriteString(")\n")
	}
	path := filepath.Join(dir, "go.mod")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func testManifest() *Manifest {
	return &Manifest{
		GoVersion: "1.23",
		Required: []Requirement{
			{Path: "gonum.org/v1/gonum", MinVersion: "v0.16.0"},
			{Path: "github.com/rs/zerolog", MinVersion: "v1.34.0"},
		},
		Optional: []Requirement{
			{Path: "go.etcd.io/bbolt", MinVersion: "v1.3.8"},
		},
	}
}

func TestValidate_AllPresent(t *testing.T) {
	gomod := writeGoMod(t, t.TempDir(),
		"gonum.org/v1/gonum v0.16.0",
		"github.com/rs/zerolog v1.35.0",
		"go.etcd.io/bbolt v1.3.8 // indirect",
	)
	runner := &fakeRunner{goVersion: "go1.24.4", gomod: gomod}

	var out bytes.Buffer
	res, err := Validate(context.Background(), testManifest(), Options{Runner: runner, Out: &out})
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.True(t, res.ModuleMode())
	assert.Empty(t, res.Missing(true))
	assert.Empty(t, res.Missing(false))
	assert.Equal(t, "v1.35.0", res.Required[1].Installed)
	assert.NoError(t, res.SmokeTestErr)
	assert.Contains(t, out.String(), "All required modules are present!")
	assert.Contains(t, out.String(), "Ready to start ML training!")
	assert.Equal(t, []string{"go env GOVERSION GOMOD"}, runner.calls)
}

func TestValidate_MissingReportOnly(t *testing.T) {
	gomod := writeGoMod(t, t.TempDir(), "github.com/rs/zerolog v1.20.0")
	runner := &fakeRunner{goVersion: "go1.23.0", gomod: gomod}

	var out bytes.Buffer
	res, err := Validate(context.Background(), testManifest(), Options{Runner: runner, Out: &out})
	require.NoError(t, err)

	assert.False(t, res.OK())
	missing := res.Missing(true)
	require.Len(t, missing, 2)
	assert.Equal(t, StatusMissing, missing[0].Status)
	assert.Equal(t, StatusOutdated, missing[1].Status)
	assert.Len(t, res.Missing(false), 1)

	text := out.String()
	assert.Contains(t, text, "Required modules missing: 2")
	assert.Contains(t, text, "Optional modules missing: 1")
	assert.Contains(t, text, "go get gonum.org/v1/gonum@v0.16.0 github.com/rs/zerolog@v1.34.0")
	assert.Contains(t, text, "v1.20.0 < required v1.34.0")
	assert.Contains(t, text, "envcheck --install-missing")
	assert.Contains(t, text, "go get go.etcd.io/bbolt@v1.3.8")
	assert.NotContains(t, text, "Ready to start ML training!")
	assert.Len(t, runner.calls, 1)
}

func TestValidate_InstallMissing(t *testing.T) {
	dir := t.TempDir()
	gomod := writeGoMod(t, dir, "github.com/rs/zerolog v1.34.0")
	runner := &fakeRunner{goVersion: "go1.24.4", gomod: gomod}
	runner.get = func(target string) error {
		assert.Equal(t, "gonum.org/v1/gonum@v0.16.0", target)
		writeGoMod(t, dir, "github.com/rs/zerolog v1.34.0", "gonum.org/v1/gonum v0.16.0")
		return nil
	}

	res, err := Validate(context.Background(), testManifest(), Options{Runner: runner, InstallMissing: true})
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, []string{"gonum.org/v1/gonum"}, res.Installed)
	assert.Empty(t, res.InstallFailed)
	assert.Contains(t, runner.calls, "go get gonum.org/v1/gonum@v0.16.0")
}

func TestValidate_InstallFailure(t *testing.T) {
	gomod := writeGoMod(t, t.TempDir(), "github.com/rs/zerolog v1.34.0")
	runner := &fakeRunner{goVersion: "go1.24.4", gomod: gomod}
	runner.get = func(string) error { return errors.New("network unreachable") }

	var out bytes.Buffer
	res, err := Validate(context.Background(), testManifest(), Options{Runner: runner, InstallMissing: true, Out: &out})
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"gonum.org/v1/gonum"}, res.InstallFailed)
	assert.Contains(t, out.String(), "Failed to install gonum.org/v1/gonum")
	assert.Contains(t, out.String(), "Still missing: gonum.org/v1/gonum")
}

func TestValidate_NoModule(t *testing.T) {
	runner := &fakeRunner{goVersion: "go1.24.4", gomod: os.DevNull}

	var out bytes.Buffer
	res, err := Validate(context.Background(), testManifest(), Options{Runner: runner, InstallMissing: true, Out: &out})
	require.NoError(t, err)

	assert.False(t, res.ModuleMode())
	assert.False(t, res.OK())
	assert.Len(t, res.Missing(true), 2)
	assert.Len(t, res.InstallFailed, 2)
	assert.Contains(t, out.String(), "go mod init")
	for _, call := range runner.calls {
		assert.False(t, strings.HasPrefix(call, "go get"), call)
	}
}

func TestValidate_OldToolchain(t *testing.T) {
	gomod := writeGoMod(t, t.TempDir())
	runner := &fakeRunner{goVersion: "go1.21.5", gomod: gomod}

	var out bytes.Buffer
	res, err := Validate(context.Background(), testManifest(), Options{Runner: runner, Out: &out})
	require.NoError(t, err)

	assert.False(t, res.GoOK)
	assert.False(t, res.OK())
	assert.Nil(t, res.Required)
	assert.Contains(t, out.String(), "Go 1.23+ required. Current version: go1.21.5")
}

func TestValidate_Errors(t *testing.T) {
	runner := &fakeRunner{envErr: errors.New("go: command not found")}
	_, err := Validate(context.Background(), testManifest(), Options{Runner: runner})
	assert.Error(t, err)

	bad := &Manifest{Required: []Requirement{{Path: "not a path", MinVersion: "v1.0.0"}}}
	_, err = Validate(context.Background(), bad, Options{Runner: &fakeRunner{}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidParameters, errors.Code(err))

	gomod := filepath.Join(t.TempDir(), "go.mod")
	require.NoError(t, os.WriteFile(gomod, []byte("this is not a go.mod"), 0o600))
	_, err = Validate(context.Background(), testManifest(), Options{Runner: &fakeRunner{goVersion: "go1.24.4", gomod: gomod}})
	assert.Error(t, err)
}

func TestGoVersionAtLeast(t *testing.T) {
	tests := []struct {
		toolchain, minimum string
		want               bool
	}{
		{"go1.24.4", "1.23", true},
		{"go1.23.0", "1.23", true},
		{"go1.23rc1", "1.23", true},
		{"go1.22.9", "1.23", false},
		{"go1.23.1", "1.23.2", false},
		{"devel +abc", "1.23", false},
		{"go1.10", "1.9", true},
		{"anything", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.toolchain+"/"+tt.minimum, func(t *testing.T) {
			assert.Equal(t, tt.want, goVersionAtLeast(tt.toolchain, tt.minimum))
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
go: "1.23"
required:
  - path: gonum.org/v1/gonum
    minVersion: v0.16.0
optional:
  - path: go.etcd.io/bbolt
`), 0o600))

	m, err := LoadManifest(good)
	require.NoError(t, err)
	assert.Equal(t, "1.23", m.GoVersion)
	require.Len(t, m.Required, 1)
	assert.Equal(t, "gonum.org/v1/gonum", m.Required[0].Path)
	require.Len(t, m.Optional, 1)
	assert.Empty(t, m.Optional[0].MinVersion)

	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "required:\n  - path: gonum.org/v1/gonum\n    version: v1.0.0\n"},
		{"bad version", "required:\n  - path: gonum.org/v1/gonum\n    minVersion: 0.16\n"},
		{"bad go", "go: latest\n"},
		{"duplicate", "required:\n  - path: gonum.org/v1/gonum\noptional:\n  - path: gonum.org/v1/gonum\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadManifest(path)
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidParameters, errors.Code(err))
		})
	}

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultManifestValid(t *testing.T) {
	assert.NoError(t, DefaultManifest().Validate())
}

func TestSmokeTest(t *testing.T) {
	assert.NoError(t, smokeTest())
}
