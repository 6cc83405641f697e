package middleware

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	os.Setenv("JWP_SESSION_SECRET", "test-session-secret-that-is-32ch!")
	os.Exit(m.Run())
}
