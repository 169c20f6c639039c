// Package platform owns every OS-conditional decision in the orchestrator.
//
// Node-bound stages never branch on the operating system themselves. They
// ask For(family) for a Capability and let it build the command to run, so
// the install step and the simulation step always branch the same way.
package platform

import (
	"fmt"
	"strings"
)

// Family is the operating system family of an execution node.
type Family string

const (
	Linux   Family = "linux"
	Windows Family = "windows"
)

// ParseFamily converts a configuration string into a Family.
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case Linux:
		return Linux, nil
	case Windows:
		return Windows, nil
	default:
		return "", fmt.Errorf("unknown os family '%s': must be 'linux' or 'windows'", s)
	}
}

// Request is the abstract platform a job asks for.
type Request string

const (
	RequestLinux   Request = "linux"
	RequestWindows Request = "windows"
	RequestAny     Request = "any"
)

// ParseRequest converts user input into a Request. An empty string means any.
func ParseRequest(s string) (Request, error) {
	switch Request(strings.ToLower(strings.TrimSpace(s))) {
	case RequestLinux:
		return RequestLinux, nil
	case RequestWindows:
		return RequestWindows, nil
	case RequestAny, "":
		return RequestAny, nil
	default:
		return "", fmt.Errorf("unknown platform '%s': must be 'windows', 'linux' or 'any'", s)
	}
}

// Matches reports whether a node of the given family satisfies the request.
func (r Request) Matches(f Family) bool {
	if r == RequestAny {
		return true
	}
	return Family(r) == f
}

// Command is a fully resolved process invocation. Args are passed to the
// process as discrete argv entries and are never joined into a shell string.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
}

// Argv returns the program followed by its arguments.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// Invocation carries the simulator arguments for one run.
type Invocation struct {
	PlayerName string
	HeroClass  string
	Level      int
	BattleDate string
	Hardcore   bool
}

// Capability builds the node-bound commands for one OS family.
type Capability interface {
	Family() Family
	BuildInstallCommand(tc Toolchain) Command
	BuildRunCommand(tc Toolchain, inv Invocation) Command
}

var capabilities = map[Family]Capability{
	Linux:   linuxCapability{},
	Windows: windowsCapability{},
}

// For returns the capability for a family. It returns an error for a family
// the orchestrator does not know how to drive.
func For(f Family) (Capability, error) {
	c, ok := capabilities[f]
	if !ok {
		return nil, fmt.Errorf("no platform capability registered for os family '%s'", f)
	}
	return c, nil
}

// simulatorArgs renders the simulator flags in a fixed order. Hardcore mode is
// a presence flag: it is appended when enabled and omitted otherwise.
func simulatorArgs(inv Invocation) []string {
	args := []string{
		"--player_name=" + inv.PlayerName,
		"--hero_class=" + inv.HeroClass,
		fmt.Sprintf("--level=%d", inv.Level),
		"--battle_date=" + inv.BattleDate,
	}
	if inv.Hardcore {
		args = append(args, "--hardcore_mode")
	}
	return args
}

func mergeEnv(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
