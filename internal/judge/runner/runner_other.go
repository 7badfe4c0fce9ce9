//go:build !linux

package runner

import "errors"

// New refuses to run participant code without Linux process isolation.
func New(profile Profile, cfg Config) (Runner, error) {
	return nil, errors.New("runner: sandboxed execution requires linux")
}
