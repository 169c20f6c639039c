package platform

// The simulator prints emoji; a legacy Windows console code page makes
// Python abort on the first one unless UTF-8 mode is forced.
var windowsEnv = map[string]string{
	"PYTHONUTF8":       "1",
	"PYTHONIOENCODING": "utf-8",
}

type windowsCapability struct{}

func (windowsCapability) Family() Family { return Windows }

func (windowsCapability) BuildInstallCommand(tc Toolchain) Command {
	tc = tc.WithDefaults(Windows)
	return Command{
		Path: tc.Install[0],
		Args: append([]string(nil), tc.Install[1:]...),
		Env:  mergeEnv(windowsEnv, tc.Env),
	}
}

func (windowsCapability) BuildRunCommand(tc Toolchain, inv Invocation) Command {
	tc = tc.WithDefaults(Windows)
	args := append([]string(nil), tc.Interpreter[1:]...)
	args = append(args, tc.Program)
	args = append(args, simulatorArgs(inv)...)
	args = append(args, tc.ExtraArgs...)
	return Command{
		Path: tc.Interpreter[0],
		Args: args,
		Env:  mergeEnv(windowsEnv, tc.Env),
	}
}
