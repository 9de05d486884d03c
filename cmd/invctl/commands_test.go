package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/jrsteele09/go-inventory-session/gate"
	"github.com/stretchr/testify/require"
)

func TestRequirementFromArgs(t *testing.T) {
	t.Run("named guard", func(t *testing.T) {
		req, err := requirementFromArgs([]string{"admin_only"}, nil, nil, false)
		require.NoError(t, err)
		require.Equal(t, gate.AdminOnly.Name, req.Name)
	})

	t.Run("unknown guard", func(t *testing.T) {
		_, err := requirementFromArgs([]string{"nope"}, nil, nil, false)
		require.ErrorContains(t, err, "unknown requirement")
	})

	t.Run("defaults to signed in", func(t *testing.T) {
		req, err := requirementFromArgs(nil, nil, nil, false)
		require.NoError(t, err)
		require.True(t, req.RequireAuth)
		require.Empty(t, req.Permissions)
	})

	t.Run("ad hoc any", func(t *testing.T) {
		req, err := requirementFromArgs(nil, []string{"a", "b"}, nil, true)
		require.NoError(t, err)
		require.Equal(t, gate.Any, req.PermissionMode)
		require.Equal(t, []string{"a", "b"}, req.Permissions)
	})
}

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	in := bufio.NewReader(strings.NewReader("alice@example.com\r\nsecret\n"))

	v, err := prompt(in, &out, "Email", "")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", v)

	v, err = prompt(in, &out, "Password", "")
	require.NoError(t, err)
	require.Equal(t, "secret", v)
	require.Equal(t, "Email: Password: ", out.String())

	v, err = prompt(in, &out, "Email", "given")
	require.NoError(t, err)
	require.Equal(t, "given", v)

	_, err = prompt(in, &out, "Email", "")
	require.ErrorContains(t, err, "email is required")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := rootCmd()
	for _, name := range []string{"login", "register", "logout", "whoami", "refresh", "verify", "profile", "password", "can", "watch", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, sub.Name())
	}
}
