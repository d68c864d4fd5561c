// Command envcheck validates the Go toolchain and the modules forestkit needs
// and optionally fetches missing ones. It exits 1 when the environment is not
// usable.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"

	"github.com/YuminosukeSato/forestkit/envcheck"
	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
)

type args struct {
	InstallMissing bool   `arg:"--install-missing" help:"run go get for missing required modules"`
	Manifest       string `arg:"-m,--manifest" help:"YAML manifest of required and optional modules (default: built in)"`
	Dir            string `arg:"-d,--dir" help:"directory of the module to check" default:"."`
	LogLevel       string `arg:"--log-level" help:"debug, info, warn or error" default:"warn"`
}

func (args) Version() string {
	return "forestkit envcheck 0.1.0"
}

func (args) Description() string {
	return "Validate the Go toolchain and forestkit's module dependencies."
}

func main() {
	var a args
	arg.MustParse(&a)

	ok, err := run(a)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", errors.Code(err), err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

func run(a args) (bool, error) {
	if err := log.SetupLogger(os.Stderr, a.LogLevel); err != nil {
		return false, err
	}

	manifest := envcheck.DefaultManifest()
	if a.Manifest != "" {
		m, err := envcheck.LoadManifest(a.Manifest)
		if err != nil {
			return false, err
		}
		manifest = m
	}

	res, err := envcheck.Validate(context.Background(), manifest, envcheck.Options{
		Dir:            a.Dir,
		InstallMissing: a.InstallMissing,
		Out:            os.Stdout,
	})
	if err != nil {
		return false, err
	}
	return res.OK(), nil
}
