package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casefile-labs/verity/internal/core/domain"
)

func TestReviewCmd_HasSubcommands(t *testing.T) {
	commands := reviewCmd.Commands()
	commandNames := make([]string, 0, len(commands))
	for _, cmd := range commands {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "list")
	assert.Contains(t, commandNames, "resolve")
	assert.Contains(t, commandNames, "override")
	assert.Contains(t, commandNames, "reinstate")
	assert.Contains(t, commandNames, "chain")
}

func TestReviewListCmd_ShowsPendingTasks(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"review", "list"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "task-1")
	assert.Contains(t, out, "interpretation")
	assert.Contains(t, out, "confidence: 0.42")
	assert.Contains(t, out, "Total: 1 pending")
}

func TestReviewResolveCmd_RequiresRationale(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	reviewRationale = ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"review", "resolve", "task-1", "approve", "--actor", "rev-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, domain.ErrJustificationRequired)
}

func TestReviewResolveCmd_RecordsDecision(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	stub := reviewService.(*stubReview)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{
		"review", "resolve", "task-1", "approve",
		"--actor", "rev-1", "--rationale", "matches figure 3",
	})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Task task-1 resolved: approve")
	if assert.Len(t, stub.resolved, 1) {
		assert.Equal(t, domain.ChoiceApprove, stub.resolved[0].Choice)
		assert.Equal(t, domain.ActorHuman, stub.resolved[0].ActorKind)
		assert.Equal(t, "rev-1", stub.resolved[0].Actor)
	}
}

func TestReviewOverrideCmd_RejectsUnknownType(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{
		"review", "override", "img-1", "sidebar",
		"--actor", "rev-1", "--rationale", "misclassified",
	})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReviewOverrideCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{
		"review", "override", "img-1", "method",
		"--actor", "rev-1", "--rationale", "this is the claimed flow",
	})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Image img-1 reclassified as method")
}

func TestReviewReinstateCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{
		"review", "reinstate", "img-1",
		"--actor", "rev-1", "--rationale", "content is legible",
	})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Image img-1 reinstated")
}

func TestAuditCmd_ShowsTrail(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"audit", "doc-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "task_resolved")
	assert.Contains(t, out, "rev-1 (human)")
	assert.Contains(t, out, "Total: 1 events (ruleset 1.0)")
}

func TestReviewChainCmd_ShowsEvents(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"review", "chain", "img-1"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Reason chain for img-1")
	assert.Contains(t, out, "task_resolved")
	assert.Contains(t, out, "matches figure 3")
}
