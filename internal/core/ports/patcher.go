package ports

import "context"

// Patcher applies a binary patch set to a jar.
//
//go:generate go run go.uber.org/mock/mockgen -source=patcher.go -destination=mocks/mock_patcher.go -package=mocks
type Patcher interface {
	// Patch writes input with patches applied to output. The classpath jars
	// resolve types referenced by input.
	Patch(ctx context.Context, input, patches string, classpath []string, output string) error
}
