package platform

// Toolchain describes how to install and launch the simulator on one OS
// family. Empty fields fall back to the family defaults.
type Toolchain struct {
	// Interpreter is the executable that runs the simulator script.
	Interpreter []string
	// Program is the simulator entry point, relative to the node workspace.
	Program string
	// Install is the full argv of the dependency installation step.
	Install []string
	// ExtraArgs are appended after the simulator flags.
	ExtraArgs []string
	// Env is merged over the family's default environment.
	Env map[string]string
}

// DefaultToolchain returns the built-in toolchain for a family.
func DefaultToolchain(f Family) Toolchain {
	switch f {
	case Windows:
		return Toolchain{
			Interpreter: []string{"py", "-3"},
			Program:     "dungeon_sim.py",
			Install:     []string{"py", "-3", "-m", "pip", "install", "--disable-pip-version-check", "-r", "requirements.txt"},
		}
	default:
		return Toolchain{
			Interpreter: []string{"python3"},
			Program:     "dungeon_sim.py",
			Install:     []string{"python3", "-m", "pip", "install", "--disable-pip-version-check", "-r", "requirements.txt"},
		}
	}
}

// WithDefaults fills every empty field of tc from the family defaults.
func (tc Toolchain) WithDefaults(f Family) Toolchain {
	def := DefaultToolchain(f)
	if len(tc.Interpreter) == 0 {
		tc.Interpreter = def.Interpreter
	}
	if tc.Program == "" {
		tc.Program = def.Program
	}
	if len(tc.Install) == 0 {
		tc.Install = def.Install
	}
	return tc
}
