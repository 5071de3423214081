// File: cmd/refresher/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("Writes the panic log", func(t *testing.T) {
		var (
			path    string
			content []byte
			code    = -1
		)
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			path, content = name, data
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("browser went away")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(content), "panic: browser went away")
		assert.Contains(t, string(content), "goroutine")
		assert.Equal(t, 1, code)
	})

	t.Run("Log write failure still exits", func(t *testing.T) {
		code := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 1, code)
	})

	t.Run("No panic", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		require.NotPanics(t, func() {
			defer handlePanic()
		})
		assert.False(t, called)
	})
}
