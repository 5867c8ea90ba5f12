package shell_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/shell"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func TestPatcher_Patch(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.jar")
	require.NoError(t, os.WriteFile(input, []byte("classes"), 0o600))
	output := filepath.Join(dir, "out.jar")

	ctrl := gomock.NewController(t)
	command := []string{"sh", "-c", `printf '%s\n' "$@" > "$0"`, "{output}", "--clean={input}", "--apply={patches}", "-e={library}"}
	patcher := shell.NewPatcher(shell.NewExecutor(mocks.NewMockLogger(ctrl)), command)

	require.NoError(t, patcher.Patch(context.Background(), input, "joined.lzma", []string{"a.jar"}, output))

	data, err := os.ReadFile(output) //nolint:gosec // test output
	require.NoError(t, err)
	want := strings.Join([]string{"--clean=" + input, "--apply=joined.lzma", "-e=a.jar"}, "\n") + "\n"
	assert.Equal(t, want, string(data))
}

func TestPatcher_Patch_Errors(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.jar")

	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockLogger(ctrl)
	mockLogger.EXPECT().Warn(gomock.Any()).AnyTimes()
	executor := shell.NewExecutor(mockLogger)

	err := shell.NewPatcher(executor, nil).Patch(context.Background(), "in.jar", "p.lzma", nil, output)
	require.ErrorContains(t, err, domain.ErrPatcherNotConfigured.Error())

	err = shell.NewPatcher(executor, []string{"true"}).Patch(context.Background(), "in.jar", "p.lzma", nil, output)
	require.ErrorContains(t, err, domain.ErrPatchFailed.Error())

	err = shell.NewPatcher(executor, []string{"false"}).Patch(context.Background(), "in.jar", "p.lzma", nil, output)
	require.ErrorContains(t, err, domain.ErrPatchFailed.Error())
}
