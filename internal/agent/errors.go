package agent

import "fmt"

// FetchError marks a failure while retrieving application source.
type FetchError struct {
	RepoURL string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.RepoURL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BuildError marks a failure while building the application image.
type BuildError struct {
	Image string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s: %v", e.Image, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// StartError marks a failure while starting the application container.
type StartError struct {
	Container string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Container, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
