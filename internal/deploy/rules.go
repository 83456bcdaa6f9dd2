package deploy

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

type Rule string

const (
	RulePinnedBase     Rule = "pinned-base"
	RuleHeadless       Rule = "headless"
	RuleNoCacheResidue Rule = "no-cache-residue"
	RulePortMatch      Rule = "port-match"
	RuleBindAll        Rule = "bind-all"
	RuleExecForm       Rule = "exec-form"
	RuleStagedSource   Rule = "staged-source"
	RuleWorkdir        Rule = "workdir"

	// RuleStages reports a descriptor with no build stage at all.
	RuleStages Rule = "stages"
)

type Violation struct {
	Rule    Rule
	Line    int
	Message string
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", v.Line, v.Rule, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

type CheckOptions struct {
	// Context is the build context. The staged-source rule is skipped when nil.
	Context fs.FS
	// ExpectedPort, when non-zero, must be both exposed and bound.
	ExpectedPort int
}

// Check evaluates every rule against d and returns the violations ordered by
// line.
func Check(d *Descriptor, opts CheckOptions) []Violation {
	if d == nil || d.Final() == nil {
		return []Violation{{Rule: RuleStages, Message: ErrNoStages.Error()}}
	}
	var out []Violation
	out = append(out, checkPinnedBase(d)...)
	out = append(out, checkHeadless(d)...)
	out = append(out, checkCacheResidue(d)...)
	out = append(out, checkStart(d, opts.ExpectedPort)...)
	out = append(out, checkWorkdir(d)...)
	if opts.Context != nil {
		out = append(out, checkStagedSources(d, opts.Context)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

func checkPinnedBase(d *Descriptor) []Violation {
	var out []Violation
	for _, s := range d.Stages {
		if s.Parent >= 0 || s.Image == "scratch" {
			continue
		}
		if !pinned(s.Image) {
			out = append(out, Violation{
				Rule:    RulePinnedBase,
				Line:    s.Line,
				Message: fmt.Sprintf("base image %q has no pinned tag or digest", s.Image),
			})
		}
	}
	return out
}

func pinned(image string) bool {
	if image == "" || strings.Contains(image, "$") {
		return false
	}
	if strings.Contains(image, "@sha256:") {
		return true
	}
	name := image
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	_, tag, ok := strings.Cut(name, ":")
	return ok && tag != "" && tag != "latest"
}

// windowingPackages are packages that pull a display server or GPU stack into
// the image.
var windowingPackages = []string{
	"libgl1*", "libglx*", "libegl*", "libgles*", "libopengl*", "libglu1*",
	"libglib2.0-*", "libgtk*", "libqt*", "qt*",
	"libx11*", "libxext*", "libxrender*", "libxcb*", "libxkb*", "libxi6", "libxtst6",
	"libsm6", "libice6",
	"mesa-*", "x11-*", "xserver-*", "xvfb", "xauth",
	"opencv-python", "opencv-contrib-python",
}

func checkHeadless(d *Descriptor) []Violation {
	var out []Violation
	for _, s := range d.Lineage() {
		for _, in := range s.Installs {
			for _, pkg := range in.Packages {
				if windowing(pkg) {
					out = append(out, Violation{
						Rule:    RuleHeadless,
						Line:    in.Line,
						Message: fmt.Sprintf("package %q belongs to a graphical stack", pkg),
					})
				}
			}
		}
	}
	return out
}

func windowing(pkg string) bool {
	for _, pattern := range windowingPackages {
		if ok, _ := path.Match(pattern, pkg); ok {
			return true
		}
	}
	return false
}

func checkCacheResidue(d *Descriptor) []Violation {
	var out []Violation
	for _, s := range d.Stages {
		for _, in := range s.Installs {
			v := Violation{Rule: RuleNoCacheResidue, Line: in.Line}
			switch in.Manager {
			case managerApt:
				if !in.HasFlag("--no-install-recommends") {
					v.Message = "apt-get install without --no-install-recommends"
					out = append(out, v)
				}
				if !in.CleansLists {
					v.Message = "apt-get install layer does not remove /var/lib/apt/lists"
					out = append(out, v)
				}
			case managerApk:
				if !in.HasFlag("--no-cache") {
					v.Message = "apk add without --no-cache"
					out = append(out, v)
				}
			case managerPip:
				if !in.HasFlag("--no-cache-dir") && s.Env["PIP_NO_CACHE_DIR"] == "" {
					v.Message = "pip install without --no-cache-dir"
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// Binding is the address a start command listens on.
type Binding struct {
	Host string
	Port int
}

// StartBinding works out the host and port the final stage's start command
// binds, from its flags or, failing that, SERVER_HOST/SERVER_PORT in ENV.
func (d *Descriptor) StartBinding() Binding {
	final := d.Final()
	if final == nil {
		return Binding{}
	}
	var b Binding
	args := final.StartCommand()
	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		if !hasValue && i+1 < len(args) && isBindFlag(name) {
			value = args[i+1]
			i++
		}
		value = final.expand(value)
		switch name {
		case "--host":
			b.Host = value
		case "--port", "-p":
			b.Port, _ = strconv.Atoi(value)
		case "--bind", "-b", "--addr", "--address", "--listen":
			host, port := splitHostPort(value)
			b.Host = host
			b.Port = port
		}
	}
	if b.Host == "" {
		b.Host = envValue(final, "SERVER_HOST", "HOST")
	}
	if b.Port == 0 {
		b.Port, _ = strconv.Atoi(envValue(final, "SERVER_PORT", "PORT"))
	}
	return b
}

func isBindFlag(name string) bool {
	switch name {
	case "--host", "--port", "-p", "--bind", "-b", "--addr", "--address", "--listen":
		return true
	}
	return false
}

func splitHostPort(v string) (string, int) {
	i := strings.LastIndex(v, ":")
	if i < 0 {
		return v, 0
	}
	port, _ := strconv.Atoi(v[i+1:])
	return v[:i], port
}

func envValue(s *Stage, keys ...string) string {
	for _, k := range keys {
		if v := s.Env[k]; v != "" {
			return v
		}
	}
	return ""
}

func checkStart(d *Descriptor, expected int) []Violation {
	final := d.Final()
	var out []Violation

	start := final.Cmd
	if final.Entrypoint != nil {
		start = final.Entrypoint
	}
	switch {
	case start == nil:
		out = append(out, Violation{Rule: RuleExecForm, Line: final.Line, Message: "final stage has no CMD or ENTRYPOINT"})
		return out
	case !start.Exec || (final.Cmd != nil && !final.Cmd.Exec):
		out = append(out, Violation{Rule: RuleExecForm, Line: start.Line, Message: "start command is not in JSON exec form"})
	}

	b := d.StartBinding()
	exposed := d.ExposedPorts()
	line := start.Line
	switch {
	case len(exposed) == 0:
		out = append(out, Violation{Rule: RulePortMatch, Line: final.Line, Message: "final stage exposes no port"})
	case b.Port == 0:
		out = append(out, Violation{Rule: RulePortMatch, Line: line, Message: "start command does not name a port"})
	case !slices.Contains(exposed, b.Port):
		out = append(out, Violation{
			Rule:    RulePortMatch,
			Line:    line,
			Message: fmt.Sprintf("start command binds %d but EXPOSE lists %v", b.Port, exposed),
		})
	}
	if expected != 0 {
		if b.Port != 0 && b.Port != expected {
			out = append(out, Violation{
				Rule:    RulePortMatch,
				Line:    line,
				Message: fmt.Sprintf("start command binds %d, want %d", b.Port, expected),
			})
		}
		if len(exposed) > 0 && !slices.Contains(exposed, expected) {
			out = append(out, Violation{
				Rule:    RulePortMatch,
				Line:    final.Expose[0].Line,
				Message: fmt.Sprintf("EXPOSE lists %v, want %d", exposed, expected),
			})
		}
	}

	switch b.Host {
	case "0.0.0.0", "::", "[::]":
	case "":
		out = append(out, Violation{Rule: RuleBindAll, Line: line, Message: "start command does not name a bind host"})
	default:
		out = append(out, Violation{
			Rule:    RuleBindAll,
			Line:    line,
			Message: fmt.Sprintf("start command binds %s, want 0.0.0.0", b.Host),
		})
	}
	return out
}

func checkWorkdir(d *Descriptor) []Violation {
	final := d.Final()
	if !strings.HasPrefix(final.Workdir, "/") {
		msg := "final stage declares no WORKDIR"
		if final.Workdir != "" {
			msg = fmt.Sprintf("WORKDIR %q is not absolute", final.Workdir)
		}
		return []Violation{{Rule: RuleWorkdir, Line: final.Line, Message: msg}}
	}
	return nil
}

func checkStagedSources(d *Descriptor, ctx fs.FS) []Violation {
	ignored, err := dockerignore(ctx)
	if err != nil {
		return []Violation{{Rule: RuleStagedSource, Message: err.Error()}}
	}

	var out []Violation
	for _, s := range d.Stages {
		for _, c := range s.Copies {
			if c.From != "" {
				continue
			}
			matched, missing := false, false
			for _, src := range c.Sources {
				if remote(src) {
					matched = true
					continue
				}
				p := contextPath(src)
				if hasMeta(p) {
					if globMatches(ctx, p, ignored) {
						matched = true
					}
					continue
				}
				if !present(ctx, p, ignored) {
					missing = true
					out = append(out, Violation{
						Rule:    RuleStagedSource,
						Line:    c.Line,
						Message: fmt.Sprintf("%s source %q is not in the build context", c.Instruction, src),
					})
					continue
				}
				matched = true
			}
			if !matched && !missing {
				out = append(out, Violation{
					Rule:    RuleStagedSource,
					Line:    c.Line,
					Message: fmt.Sprintf("%s sources %v match nothing in the build context", c.Instruction, c.Sources),
				})
			}
		}
	}
	return out
}

func dockerignore(ctx fs.FS) (*patternmatcher.PatternMatcher, error) {
	data, err := fs.ReadFile(ctx, ".dockerignore")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read .dockerignore: %w", err)
	}
	patterns, err := ignorefile.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse .dockerignore: %w", err)
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("parse .dockerignore: %w", err)
	}
	return pm, nil
}

func present(ctx fs.FS, p string, ignored *patternmatcher.PatternMatcher) bool {
	if _, err := fs.Stat(ctx, p); err != nil {
		return false
	}
	if p == "." || ignored == nil {
		return true
	}
	skip, err := ignored.MatchesOrParentMatches(p)
	return err == nil && !skip
}

func globMatches(ctx fs.FS, pattern string, ignored *patternmatcher.PatternMatcher) bool {
	matches, err := fs.Glob(ctx, pattern)
	if err != nil {
		return false
	}
	for _, m := range matches {
		if present(ctx, m, ignored) {
			return true
		}
	}
	return false
}

func contextPath(src string) string {
	p := path.Clean("/" + src)
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "."
	}
	return p
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

func remote(src string) bool {
	for _, prefix := range []string{"http://", "https://", "git@", "git://"} {
		if strings.HasPrefix(src, prefix) {
			return true
		}
	}
	return false
}
