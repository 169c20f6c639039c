package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Simulations []*simulationBlock `hcl:"simulation,block"`
	Toolchains  []*toolchainBlock  `hcl:"toolchain,block"`
	Pools       []*poolBlock       `hcl:"pool,block"`
	Archives    []*backendBlock    `hcl:"archive,block"`
	Notifiers   []*backendBlock    `hcl:"notifier,block"`
}

type simulationBlock struct {
	WorkDir           *string `hcl:"workdir,optional"`
	ReportFile        *string `hcl:"report_file,optional"`
	LogFile           *string `hcl:"log_file,optional"`
	SuccessExitCodes  []int   `hcl:"success_exit_codes,optional"`
	UploadConcurrency *int    `hcl:"upload_concurrency,optional"`
}

type toolchainBlock struct {
	OS          string            `hcl:"os,label"`
	Interpreter []string          `hcl:"interpreter,optional"`
	Program     *string           `hcl:"program,optional"`
	Install     []string          `hcl:"install,optional"`
	ExtraArgs   []string          `hcl:"extra_args,optional"`
	Env         map[string]string `hcl:"env,optional"`
}

type poolBlock struct {
	Type           string   `hcl:"type,label"`
	AcquireTimeout *string  `hcl:"acquire_timeout,optional"`
	PollInterval   *string  `hcl:"poll_interval,optional"`
	Constraint     *string  `hcl:"constraint,optional"`
	Remain         hcl.Body `hcl:",remain"`
}

type backendBlock struct {
	Type   string   `hcl:"type,label"`
	Remain hcl.Body `hcl:",remain"`
}

// settings is the format-specific payload stored in config.Backend.Settings.
type settings struct {
	body    hcl.Body
	evalCtx *hcl.EvalContext
}
