package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRosdash(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRobotStateCommands(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ros/startup":
			w.Write([]byte(`{"state":"running"}`))
		default:
			http.Error(w, "robot busy", http.StatusConflict)
		}
	}))
	defer bridge.Close()

	out, err := runRosdash(t, "startup", "--bridge", bridge.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `{"state":"running"}`)

	_, err = runRosdash(t, "shutdown", "--bridge", bridge.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown failed")
	assert.Contains(t, err.Error(), "409")
}
