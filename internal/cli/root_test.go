package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "blog-cms", cmd.Use)

	for _, name := range []string{"serve", "migrate", "create-admin"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestFlags(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	port := serve.Flags().Lookup("port")
	require.NotNil(t, port)
	assert.Equal(t, "p", port.Shorthand)

	admin, _, err := cmd.Find([]string{"create-admin"})
	require.NoError(t, err)
	assert.NotNil(t, admin.Flags().Lookup("email"))
	assert.NotNil(t, admin.Flags().Lookup("password"))
}

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "blog.db"))
	t.Setenv("AUTH_SECRET", "0123456789abcdef0123")
}

func TestMigrateAndCreateAdmin(t *testing.T) {
	sqliteEnv(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "schema up to date")

	out.Reset()
	cmd = NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"create-admin", "--email", "Admin@Example.com", "--password", "secret1"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "admin@example.com")

	cmd = NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"create-admin", "--email", "admin@example.com", "--password", "secret1"})
	assert.Error(t, cmd.Execute(), "email is already registered")
}

func TestCreateAdminRequiresFlags(t *testing.T) {
	sqliteEnv(t)
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"create-admin", "--email", "a@b.co"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password")
}
