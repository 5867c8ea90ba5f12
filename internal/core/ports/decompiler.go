// Package ports defines the core interfaces for the application.
package ports

import "context"

// Decompiler turns a class jar into a sources jar.
//
//go:generate go run go.uber.org/mock/mockgen -source=decompiler.go -destination=mocks/mock_decompiler.go -package=mocks
type Decompiler interface {
	// Decompile writes the sources of input to output. The classpath jars
	// resolve types referenced by input.
	Decompile(ctx context.Context, input string, classpath []string, output string) error
}
