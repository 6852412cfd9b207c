package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mholva/gwmigrate/internal/engine"
)

// A run that left failures behind reports the sentinel error, so the
// exit code is decided at the top of main after deferred cleanups ran.
func TestRunResult(t *testing.T) {
	assert.NoError(t, runResult(engine.NewSummary()))

	partial := engine.NewSummary()
	partial.Failed = 1
	assert.ErrorIs(t, runResult(partial), errPartialFailure)

	folderFail := engine.NewSummary()
	folderFail.FoldersFailed = 1
	assert.ErrorIs(t, runResult(folderFail), errPartialFailure)
}
