// Package deploy reads the service Dockerfile, checks it against the
// deployment contract and turns it into Kubernetes objects.
package deploy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

var ErrNoStages = errors.New("dockerfile has no FROM instruction")

// Descriptor is the build description extracted from a Dockerfile.
type Descriptor struct {
	// Args holds the defaults of ARG instructions declared before the first FROM.
	Args   map[string]string
	Stages []*Stage
}

type Stage struct {
	Index int
	Name  string
	Image string
	// Parent is the index of the stage this one is built FROM, or -1.
	Parent int
	Line   int

	Workdir    string
	Env        map[string]string
	Expose     []Port
	Installs   []Install
	Copies     []Copy
	Cmd        *Command
	Entrypoint *Command
	User       string

	// cmdSet records a CMD declared in this stage rather than inherited.
	cmdSet bool
}

type Port struct {
	Number   int
	Protocol string
	Line     int
}

// Install is one package manager invocation inside a RUN instruction.
type Install struct {
	Manager  string
	Packages []string
	Flags    []string
	Line     int
	// CleansLists reports whether the same RUN removes /var/lib/apt/lists.
	CleansLists bool
}

type Copy struct {
	Instruction string
	From        string
	Sources     []string
	Dest        string
	Line        int
}

type Command struct {
	Args []string
	Exec bool
	Line int
}

// Final returns the stage that produces the runtime image.
func (d *Descriptor) Final() *Stage {
	if len(d.Stages) == 0 {
		return nil
	}
	return d.Stages[len(d.Stages)-1]
}

// Lineage returns the final stage followed by the stages it is built on.
func (d *Descriptor) Lineage() []*Stage {
	var out []*Stage
	for s := d.Final(); s != nil; {
		out = append(out, s)
		if s.Parent < 0 {
			break
		}
		s = d.Stages[s.Parent]
	}
	return out
}

// Packages lists the system packages installed into the runtime image, in
// install order.
func (d *Descriptor) Packages() []string {
	lineage := d.Lineage()
	var out []string
	for i := len(lineage) - 1; i >= 0; i-- {
		for _, in := range lineage[i].Installs {
			if in.Manager == managerPip {
				continue
			}
			out = append(out, in.Packages...)
		}
	}
	return out
}

// ExposedPorts returns the port numbers exposed by the runtime image.
func (d *Descriptor) ExposedPorts() []int {
	final := d.Final()
	if final == nil {
		return nil
	}
	out := make([]int, 0, len(final.Expose))
	for _, p := range final.Expose {
		out = append(out, p.Number)
	}
	return out
}

// StartCommand returns ENTRYPOINT and CMD combined the way the runtime does.
func (s *Stage) StartCommand() []string {
	var args []string
	if s.Entrypoint != nil {
		args = append(args, s.Entrypoint.Args...)
		if !s.Entrypoint.Exec {
			return args
		}
	}
	if s.Cmd != nil {
		args = append(args, s.Cmd.Args...)
	}
	return args
}

func ParseFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a Dockerfile into a Descriptor.
func Parse(r io.Reader) (*Descriptor, error) {
	res, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse dockerfile: %w", err)
	}

	d := &Descriptor{Args: map[string]string{}}
	var cur *Stage
	for _, node := range res.AST.Children {
		instr := strings.ToLower(node.Value)
		if instr == "arg" && cur == nil {
			for _, kv := range nodeArgs(node) {
				name, value, _ := strings.Cut(kv, "=")
				d.Args[name] = unquote(value)
			}
			continue
		}
		if instr == "from" {
			cur = d.newStage(node)
			continue
		}
		if cur == nil {
			continue
		}
		if err := cur.apply(instr, node); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.StartLine, err)
		}
	}

	if len(d.Stages) == 0 {
		return nil, ErrNoStages
	}
	return d, nil
}

func (d *Descriptor) newStage(node *parser.Node) *Stage {
	args := nodeArgs(node)
	s := &Stage{
		Index:  len(d.Stages),
		Parent: -1,
		Line:   node.StartLine,
		Env:    map[string]string{},
	}
	if len(args) > 0 {
		s.Image = os.Expand(args[0], func(k string) string { return d.Args[k] })
	}
	if len(args) >= 3 && strings.EqualFold(args[1], "as") {
		s.Name = strings.ToLower(args[2])
	}

	if parent := d.stageByName(s.Image); parent != nil {
		s.Parent = parent.Index
		s.Workdir = parent.Workdir
		s.User = parent.User
		s.Cmd = parent.Cmd
		s.Entrypoint = parent.Entrypoint
		s.Expose = append(s.Expose, parent.Expose...)
		for k, v := range parent.Env {
			s.Env[k] = v
		}
	}

	d.Stages = append(d.Stages, s)
	return s
}

func (d *Descriptor) stageByName(ref string) *Stage {
	ref = strings.ToLower(ref)
	for _, s := range d.Stages {
		if s.Name != "" && s.Name == ref {
			return s
		}
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < len(d.Stages) {
		return d.Stages[i]
	}
	return nil
}

func (s *Stage) apply(instr string, node *parser.Node) error {
	switch instr {
	case "workdir":
		args := nodeArgs(node)
		if len(args) == 0 {
			return nil
		}
		dir := s.expand(args[0])
		if !strings.HasPrefix(dir, "/") && s.Workdir != "" {
			dir = strings.TrimSuffix(s.Workdir, "/") + "/" + dir
		}
		s.Workdir = dir

	case "env":
		args := nodeArgs(node)
		for i := 0; i+1 < len(args); i += 3 {
			s.Env[args[i]] = s.expand(unquote(args[i+1]))
		}

	case "expose":
		for _, raw := range nodeArgs(node) {
			p, err := parsePort(s.expand(raw))
			if err != nil {
				return err
			}
			p.Line = node.StartLine
			s.Expose = append(s.Expose, p)
		}

	case "run":
		s.Installs = append(s.Installs, findInstalls(runScript(node), node.StartLine)...)

	case "copy", "add":
		args := nodeArgs(node)
		if len(args) < 2 {
			return fmt.Errorf("%s needs a source and a destination", strings.ToUpper(instr))
		}
		s.Copies = append(s.Copies, Copy{
			Instruction: strings.ToUpper(instr),
			From:        flagValue(node.Flags, "from"),
			Sources:     args[:len(args)-1],
			Dest:        args[len(args)-1],
			Line:        node.StartLine,
		})

	case "cmd":
		s.Cmd = command(node)
		s.cmdSet = true

	case "entrypoint":
		s.Entrypoint = command(node)
		// ENTRYPOINT resets an inherited CMD, not one set in this stage.
		if !s.cmdSet {
			s.Cmd = nil
		}

	case "user":
		if args := nodeArgs(node); len(args) > 0 {
			s.User = args[0]
		}
	}
	return nil
}

func (s *Stage) expand(v string) string {
	return os.Expand(v, func(k string) string { return s.Env[k] })
}

func command(node *parser.Node) *Command {
	c := &Command{Exec: node.Attributes["json"], Line: node.StartLine}
	if c.Exec {
		c.Args = nodeArgs(node)
		return c
	}
	for _, words := range splitCommands(strings.Join(nodeArgs(node), " ")) {
		c.Args = append(c.Args, words...)
	}
	return c
}

func runScript(node *parser.Node) string {
	script := strings.Join(nodeArgs(node), " ")
	for _, h := range node.Heredocs {
		script += "\n" + h.Content
	}
	return script
}

func nodeArgs(node *parser.Node) []string {
	var out []string
	for n := node.Next; n != nil; n = n.Next {
		out = append(out, n.Value)
	}
	return out
}

func flagValue(flags []string, name string) string {
	prefix := "--" + name + "="
	for _, f := range flags {
		if strings.HasPrefix(f, prefix) {
			return strings.TrimPrefix(f, prefix)
		}
	}
	return ""
}

func parsePort(raw string) (Port, error) {
	num, proto, _ := strings.Cut(raw, "/")
	if proto == "" {
		proto = "tcp"
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 || n > 65535 {
		return Port{}, fmt.Errorf("invalid EXPOSE port %q", raw)
	}
	return Port{Number: n, Protocol: strings.ToLower(proto)}, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}
