package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorpusCmd_Use(t *testing.T) {
	assert.Equal(t, "corpus", corpusCmd.Use)
}

func TestCorpusCmd_HasSubcommands(t *testing.T) {
	commands := corpusCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "add")
	assert.Contains(t, commandNames, "list")
}

func TestCorpusAddCmd_ErrorsWithoutServices(t *testing.T) {
	oldStore := corpusStore
	corpusStore = nil
	defer func() { corpusStore = oldStore }()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"corpus", "add", "Matter A"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestCorpusAddCmd_RegistersCorpus(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"corpus", "add", "Patent dispute 42", "--description", "prior art"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Corpus registered:")
	assert.Contains(t, buf.String(), "Patent dispute 42")
}

func TestCorpusListCmd_EmptyList(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"corpus", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "No corpora registered")
}

func TestCorpusListCmd_ListsRegistered(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"corpus", "add", "Matter B"})
	assert.NoError(t, rootCmd.Execute())

	buf.Reset()
	rootCmd.SetArgs([]string{"corpus", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Matter B")
	assert.Contains(t, buf.String(), "Total: 1 corpora")
}
