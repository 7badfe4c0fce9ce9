package runner

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"codenvibe/internal/common"

	"github.com/google/shlex"
)

// Profile describes how to launch one interpreted language. Command is a
// template; {src} expands to the absolute path of the source file.
type Profile struct {
	Name       string
	SourceFile string
	Command    string
	Env        []string
	// SkipAddressSpaceLimit is set for runtimes that reserve large virtual
	// mappings at startup and abort under RLIMIT_AS.
	SkipAddressSpaceLimit bool
}

var builtinProfiles = map[string]Profile{
	"python": {
		Name:       "python",
		SourceFile: "main.py",
		Command:    "python3 -I -B {src}",
		Env:        []string{"PYTHONIOENCODING=utf-8"},
	},
	"javascript": {
		Name:                  "javascript",
		SourceFile:            "main.js",
		Command:               "node --max-old-space-size=192 {src}",
		SkipAddressSpaceLimit: true,
	},
	"shell": {
		Name:       "shell",
		SourceFile: "main.sh",
		Command:    "sh {src}",
	},
}

func LookupProfile(name string) (Profile, error) {
	p, ok := builtinProfiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown language profile %q: %w", name, common.ErrValidation)
	}
	return p, nil
}

func ProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Argv expands the command template for a workspace and splits it the way a
// shell would, without invoking one.
func (p Profile) Argv(workDir string) ([]string, error) {
	src := filepath.Join(workDir, p.SourceFile)
	expanded := strings.ReplaceAll(p.Command, "{src}", shellQuote(src))
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse command for %s: %w", p.Name, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command for %s", p.Name)
	}
	return fields, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
