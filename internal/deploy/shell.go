package deploy

import (
	"strings"
)

const (
	managerApt = "apt"
	managerApk = "apk"
	managerYum = "yum"
	managerPip = "pip"
)

// splitCommands breaks a shell script into simple commands, each a list of
// words with quotes removed. Command separators are && || ; | & and newlines.
// Expansions and subshells are kept as literal text.
func splitCommands(script string) [][]string {
	var (
		cmds   [][]string
		words  []string
		word   strings.Builder
		inWord bool
		quote  rune
	)
	endWord := func() {
		if inWord {
			words = append(words, word.String())
			word.Reset()
			inWord = false
		}
	}
	endCmd := func() {
		endWord()
		if len(words) > 0 {
			cmds = append(cmds, words)
			words = nil
		}
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else if r == '\\' && quote == '"' && i+1 < len(runes) {
				i++
				word.WriteRune(runes[i])
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == '\\' && i+1 < len(runes):
			i++
			if runes[i] != '\n' {
				word.WriteRune(runes[i])
				inWord = true
			}
		case r == '#' && !inWord:
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			endCmd()
		case r == ';' || r == '&' || r == '|' || r == '\n':
			endCmd()
		case r == ' ' || r == '\t' || r == '\r':
			endWord()
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	endCmd()
	return cmds
}

// findInstalls returns the package installs in a RUN script.
func findInstalls(script string, line int) []Install {
	cmds := splitCommands(script)
	cleans := false
	for _, words := range cmds {
		words = stripPrefix(words)
		if len(words) == 0 || words[0] != "rm" {
			continue
		}
		for _, w := range words[1:] {
			if strings.HasPrefix(w, "/var/lib/apt/lists") {
				cleans = true
			}
		}
	}

	var out []Install
	for _, words := range cmds {
		in, ok := parseInstall(stripPrefix(words))
		if !ok {
			continue
		}
		in.Line = line
		in.CleansLists = cleans
		out = append(out, in)
	}
	return out
}

// stripPrefix drops leading variable assignments and sudo/env wrappers.
func stripPrefix(words []string) []string {
	for len(words) > 0 {
		w := words[0]
		switch {
		case w == "sudo" || w == "env" || w == "exec":
			words = words[1:]
		case !strings.HasPrefix(w, "-") && strings.Contains(w, "=") && !strings.Contains(w, "/"):
			words = words[1:]
		default:
			return words
		}
	}
	return words
}

var valueFlags = map[string]map[string]bool{
	managerApt: {"-o": true, "-t": true, "--target-release": true, "-c": true},
	managerApk: {"-t": true, "--virtual": true, "-X": true, "--repository": true, "--root": true, "-p": true},
	managerYum: {"--setopt": true, "--enablerepo": true, "--disablerepo": true},
	managerPip: {
		"-r": true, "--requirement": true, "-c": true, "--constraint": true,
		"-e": true, "--editable": true, "-i": true, "--index-url": true,
		"--extra-index-url": true, "-t": true, "--target": true, "-f": true, "--find-links": true,
	},
}

func parseInstall(words []string) (Install, bool) {
	if len(words) == 0 {
		return Install{}, false
	}

	var manager, verb string
	rest := words[1:]
	switch base(words[0]) {
	case "apt-get", "apt", "aptitude":
		manager, verb = managerApt, "install"
	case "apk":
		manager, verb = managerApk, "add"
	case "yum", "dnf", "microdnf":
		manager, verb = managerYum, "install"
	case "pip", "pip3":
		manager, verb = managerPip, "install"
	case "python", "python3":
		if len(rest) >= 2 && rest[0] == "-m" && (rest[1] == "pip" || rest[1] == "pip3") {
			manager, verb = managerPip, "install"
			rest = rest[2:]
		}
	}
	if manager == "" {
		return Install{}, false
	}

	in := Install{Manager: manager}
	seenVerb := false
	for i := 0; i < len(rest); i++ {
		w := rest[i]
		if strings.HasPrefix(w, "-") {
			name, _, hasValue := strings.Cut(w, "=")
			in.Flags = append(in.Flags, name)
			if !hasValue && valueFlags[manager][name] {
				i++
			}
			continue
		}
		if !seenVerb {
			if w != verb {
				return Install{}, false
			}
			seenVerb = true
			continue
		}
		if name := packageName(manager, w); name != "" {
			in.Packages = append(in.Packages, name)
		}
	}
	if !seenVerb {
		return Install{}, false
	}
	return in, true
}

func (in Install) HasFlag(names ...string) bool {
	for _, f := range in.Flags {
		for _, n := range names {
			if f == n {
				return true
			}
		}
	}
	return false
}

// packageName strips version pins: pkg=1.2, pkg~1, pkg==1.0, pkg>=2.
func packageName(manager, spec string) string {
	cut := "="
	switch manager {
	case managerApk:
		cut = "=~<>"
	case managerPip:
		cut = "=<>~![;"
	}
	if i := strings.IndexAny(spec, cut); i >= 0 {
		spec = spec[:i]
	}
	return strings.ToLower(strings.TrimSpace(spec))
}

func base(cmd string) string {
	if i := strings.LastIndex(cmd, "/"); i >= 0 {
		return cmd[i+1:]
	}
	return cmd
}
