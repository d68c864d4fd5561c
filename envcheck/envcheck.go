// Package envcheck validates that the Go toolchain and the modules forestkit
// depends on are present before a run, and can fetch missing ones.
package envcheck

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"regexp"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/forestkit/pkg/errors"
	"github.com/YuminosukeSato/forestkit/pkg/log"
)

// Status is the outcome of one module check.
type Status int

const (
	StatusOK Status = iota
	StatusMissing
	StatusOutdated
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMissing:
		return "missing"
	case StatusOutdated:
		return "outdated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ModuleCheck reports one manifest entry against go.mod.
type ModuleCheck struct {
	Requirement
	Required  bool
	Installed string
	Status    Status
}

func (c ModuleCheck) String() string {
	switch c.Status {
	case StatusOK:
		return fmt.Sprintf("%-9s %s %s", c.Status, c.Path, c.Installed)
	case StatusOutdated:
		return fmt.Sprintf("%-9s %s: %s < required %s", c.Status, c.Path, c.Installed, c.MinVersion)
	default:
		return fmt.Sprintf("%-9s %s: not in go.mod", c.Status, c.Path)
	}
}

// target is the argument handed to go get.
func (c ModuleCheck) target() string {
	if c.MinVersion == "" {
		return c.Path + "@latest"
	}
	return c.Path + "@" + c.MinVersion
}

// Result collects everything Validate found.
type Result struct {
	GoVersion string
	GoOK      bool
	// GoMod is the main module's go.mod, empty outside module mode.
	GoMod string

	Required []ModuleCheck
	Optional []ModuleCheck

	Installed     []string
	InstallFailed []string

	SmokeTestErr error
}

// ModuleMode reports whether a go.mod was found.
func (r *Result) ModuleMode() bool {
	return r.GoMod != ""
}

// Missing returns the failing checks of the required or optional group.
func (r *Result) Missing(required bool) []ModuleCheck {
	group := r.Optional
	if required {
		group = r.Required
	}
	var out []ModuleCheck
	for _, c := range group {
		if c.Status != StatusOK {
			out = append(out, c)
		}
	}
	return out
}

// OK reports whether the environment can run forestkit.
func (r *Result) OK() bool {
	return r.GoOK && len(r.Missing(true)) == 0 && r.SmokeTestErr == nil
}

// Options configures Validate.
type Options struct {
	// Dir is where go commands run. Empty means the current directory.
	Dir string
	// InstallMissing runs go get for every missing or outdated required
	// module instead of printing a hint.
	InstallMissing bool
	Runner         Runner
	Out            io.Writer
}

type checker struct {
	ctx    context.Context
	opts   Options
	out    io.Writer
	logger log.Logger
}

func (c *checker) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Validate checks the toolchain and manifest and prints a report to
// opts.Out. A non-nil error means the check itself could not run; an
// unhealthy environment is reported through Result.OK.
func Validate(ctx context.Context, m *Manifest, opts Options) (*Result, error) {
	if m == nil {
		m = DefaultManifest()
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	c := &checker{ctx: ctx, opts: opts, out: out, logger: log.GetLoggerWithName("envcheck")}
	return c.validate(m)
}

func (c *checker) validate(m *Manifest) (*Result, error) {
	c.printf("ENVIRONMENT VALIDATION\n%s\n", strings.Repeat("=", 50))

	env, err := c.opts.Runner.Run(c.ctx, c.opts.Dir, "go", "env", "GOVERSION", "GOMOD")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query the go toolchain")
	}
	lines := strings.Split(strings.TrimSpace(string(env)), "\n")
	res := &Result{GoVersion: strings.TrimSpace(lines[0])}
	if len(lines) > 1 {
		if gomod := strings.TrimSpace(lines[1]); gomod != os.DevNull {
			res.GoMod = gomod
		}
	}

	if res.ModuleMode() {
		c.printf("Module mode: %s\n", res.GoMod)
	} else {
		c.printf("No go.mod found (module mode off)\n")
		c.printf("Recommended: create a module first:\n   go mod init <module path>\n   Then run this check again\n\n")
	}

	res.GoOK = goVersionAtLeast(res.GoVersion, m.GoVersion)
	if !res.GoOK {
		c.printf("Go %s+ required. Current version: %s\n", m.GoVersion, res.GoVersion)
		return res, nil
	}
	c.printf("Go version: %s\n", res.GoVersion)

	installed, err := readRequirements(res.GoMod)
	if err != nil {
		return nil, err
	}
	res.Required = checkGroup(m.Required, true, installed)
	res.Optional = checkGroup(m.Optional, false, installed)

	c.printf("\nChecking required modules:\n")
	for _, mc := range res.Required {
		c.printf("  %s\n", mc)
	}
	c.printf("\nChecking optional modules:\n")
	for _, mc := range res.Optional {
		c.printf("  %s\n", mc)
	}

	missing := res.Missing(true)
	optionalMissing := res.Missing(false)
	c.printf("\nSummary:\n")
	c.printf("  Required modules missing: %d\n", len(missing))
	c.printf("  Optional modules missing: %d\n", len(optionalMissing))

	if len(missing) > 0 {
		c.printf("\nMissing required modules: %s\n", strings.Join(paths(missing), ", "))
		if c.opts.InstallMissing {
			if err := c.install(res, missing, m); err != nil {
				return nil, err
			}
		} else {
			c.printf("\nTo install missing modules, run:\n")
			c.printf("   go get %s\n", strings.Join(targets(missing), " "))
			c.printf("   Or use: envcheck --install-missing\n")
		}
	} else {
		c.printf("\nAll required modules are present!\n")
	}

	if len(optionalMissing) > 0 {
		c.printf("\nOptional modules for enhanced features:\n")
		c.printf("   go get %s\n", strings.Join(targets(optionalMissing), " "))
	}

	c.printf("\nTesting numeric stack...\n")
	res.SmokeTestErr = errors.SafeExecute("envcheck.smokeTest", smokeTest)
	if res.SmokeTestErr != nil {
		c.printf("  Environment test failed: %v\n", res.SmokeTestErr)
		return res, nil
	}
	c.printf("  Basic functionality test passed\n")

	c.printf("\nEnvironment validation complete!\n")
	if res.OK() {
		c.printf("Ready to start ML training!\n")
	}
	return res, nil
}

// install runs go get for each missing module and re-checks the required
// group against the updated go.mod.
func (c *checker) install(res *Result, missing []ModuleCheck, m *Manifest) error {
	c.printf("\nInstalling missing modules...\n")
	if !res.ModuleMode() {
		c.printf("  Cannot install without a go.mod\n")
		res.InstallFailed = append(res.InstallFailed, paths(missing)...)
		return nil
	}

	for _, mc := range missing {
		c.printf("  Installing %s...\n", mc.target())
		if _, err := c.opts.Runner.Run(c.ctx, c.opts.Dir, "go", "get", mc.target()); err != nil {
			c.logger.Warn("go get failed", "module", mc.Path, "error", err.Error())
			c.printf("  Failed to install %s\n", mc.Path)
			res.InstallFailed = append(res.InstallFailed, mc.Path)
			continue
		}
		c.printf("  %s installed successfully\n", mc.Path)
		res.Installed = append(res.Installed, mc.Path)
	}

	installed, err := readRequirements(res.GoMod)
	if err != nil {
		return err
	}
	res.Required = checkGroup(m.Required, true, installed)
	if still := res.Missing(true); len(still) > 0 {
		c.printf("  Still missing: %s\n", strings.Join(paths(still), ", "))
	}
	return nil
}

// readRequirements maps module path to version for every require line of
// gomod. An empty path yields an empty map.
func readRequirements(gomod string) (map[string]string, error) {
	versions := make(map[string]string)
	if gomod == "" {
		return versions, nil
	}
	data, err := os.ReadFile(gomod)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", gomod)
	}
	f, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", gomod)
	}
	for _, r := range f.Require {
		versions[r.Mod.Path] = r.Mod.Version
	}
	return versions, nil
}

func checkGroup(reqs []Requirement, required bool, installed map[string]string) []ModuleCheck {
	checks := make([]ModuleCheck, 0, len(reqs))
	for _, r := range reqs {
		mc := ModuleCheck{Requirement: r, Required: required}
		v, ok := installed[r.Path]
		switch {
		case !ok:
			mc.Status = StatusMissing
		case r.MinVersion != "" && semver.Compare(v, r.MinVersion) < 0:
			mc.Installed = v
			mc.Status = StatusOutdated
		default:
			mc.Installed = v
			mc.Status = StatusOK
		}
		checks = append(checks, mc)
	}
	return checks
}

var goVersionRe = regexp.MustCompile(`^go(\d+)\.(\d+)(?:\.(\d+))?`)

// goVersionAtLeast compares a toolchain name such as "go1.24.4" or
// "go1.23rc1" against a minimum such as "1.23". Unparseable names fail.
func goVersionAtLeast(toolchain, minimum string) bool {
	if minimum == "" {
		return true
	}
	m := goVersionRe.FindStringSubmatch(toolchain)
	if m == nil {
		return false
	}
	v := "v" + m[1] + "." + m[2]
	if m[3] != "" {
		v += "." + m[3]
	}
	return semver.Compare(v, "v"+minimum) >= 0
}

// smokeTest exercises the numeric stack on a random 10x3 matrix.
func smokeTest() error {
	rng := rand.New(rand.NewPCG(1, 1))
	data := make([]float64, 30)
	for i := range data {
		data[i] = rng.Float64()
	}
	X := mat.NewDense(10, 3, data)
	if r, c := X.Dims(); r != 10 || c != 3 {
		return errors.Newf("unexpected matrix shape (%d, %d)", r, c)
	}
	for j := 0; j < 3; j++ {
		if mean := stat.Mean(mat.Col(nil, j, X), nil); mean < 0 || mean > 1 {
			return errors.Newf("column %d mean %.3f outside [0, 1]", j, mean)
		}
	}
	return nil
}

func paths(checks []ModuleCheck) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.Path
	}
	return out
}

func targets(checks []ModuleCheck) []string {
	out := make([]string, len(checks))
	for i, c := range checks {
		out[i] = c.target()
	}
	return out
}
