package internal

// Exit codes reported to the invoking automation. Each failure mode gets
// its own code so callers can distinguish a gate rejection from an
// infrastructure problem without parsing output.
const (
	ExitOK           = 0
	ExitConfig       = 1
	ExitTestFailed   = 2
	ExitDeployFailed = 3
	ExitBuildFailed  = 4
	ExitLockTimeout  = 5
)
