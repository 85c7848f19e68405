package main

// ExitResult lets commands control the exit code and whether their message
// goes to stderr. Code 0 carries successful output.
type ExitResult struct {
	Code     int
	Message  string
	ToStderr bool
}

func (e ExitResult) Error() string { return e.Message }

func usageExit(message string) error {
	return ExitResult{Code: 2, Message: message, ToStderr: true}
}

func failExit(message string) error {
	return ExitResult{Code: 1, Message: message, ToStderr: true}
}
