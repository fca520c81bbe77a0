package id

import "github.com/google/uuid"

// New returns a random (version 4) identifier for jobs.
func New() string {
	return uuid.NewString()
}

func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
