package platform

type linuxCapability struct{}

func (linuxCapability) Family() Family { return Linux }

func (linuxCapability) BuildInstallCommand(tc Toolchain) Command {
	tc = tc.WithDefaults(Linux)
	return Command{
		Path: tc.Install[0],
		Args: append([]string(nil), tc.Install[1:]...),
		Env:  mergeEnv(nil, tc.Env),
	}
}

func (linuxCapability) BuildRunCommand(tc Toolchain, inv Invocation) Command {
	tc = tc.WithDefaults(Linux)
	args := append([]string(nil), tc.Interpreter[1:]...)
	args = append(args, tc.Program)
	args = append(args, simulatorArgs(inv)...)
	args = append(args, tc.ExtraArgs...)
	return Command{
		Path: tc.Interpreter[0],
		Args: args,
		Env:  mergeEnv(nil, tc.Env),
	}
}
