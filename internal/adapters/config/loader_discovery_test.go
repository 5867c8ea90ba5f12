package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/core/domain"
)

func TestLoader_Load_Discovery(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, "parallelism: 2\n")

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, domain.DirPerm))

	tests := []struct {
		name string
		cwd  string
	}{
		{name: "config directory", cwd: root},
		{name: "nested directory", cwd: nested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := newLoader(t).Load(tt.cwd, "")
			require.NoError(t, err)
			assert.Equal(t, root, cfg.Root)
			assert.Equal(t, 2, cfg.Parallelism)
		})
	}
}

func TestLoader_Load_NearestWins(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	createFile(t, root, domain.ConfigFileName, "parallelism: 2\n")
	inner := filepath.Join(root, "inner")
	createFile(t, inner, domain.ConfigFileName, "parallelism: 5\n")

	cfg, err := newLoader(t).Load(inner, "")
	require.NoError(t, err)
	assert.Equal(t, inner, cfg.Root)
	assert.Equal(t, 5, cfg.Parallelism)
}
