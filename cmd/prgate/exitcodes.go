package main

// Process exit codes. CI treats any non-zero status as a failed check.
const (
	// exitPass means the gate ran and nothing blocks the merge.
	exitPass = 0
	// exitFailed means the merge is blocked, or the run itself failed.
	exitFailed = 1
	// exitUsage means invalid flags or option values.
	exitUsage = 2
)
