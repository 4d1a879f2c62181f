package nftexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorsPlainLines(t *testing.T) {
	stderr := "Error: syntax error, unexpected $end\nError: invalid expression\n"
	assert.Equal(t, []string{"syntax error, unexpected $end", "invalid expression"}, ParseErrors(stderr))
}

func TestParseErrorsNftPrefix(t *testing.T) {
	assert.Equal(t, []string{"syntax error"}, ParseErrors("nft: syntax error\n"))
}

func TestParseErrorsEmpty(t *testing.T) {
	assert.Empty(t, ParseErrors(""))
	assert.Empty(t, ParseErrors("\n\n"))
}

func TestParseErrorsStructured(t *testing.T) {
	stderr := `{"errors":[{"message":"Could not process rule: No such file or directory"},{"message":"unknown chain"}]}`
	assert.Equal(t,
		[]string{"Could not process rule: No such file or directory", "unknown chain"},
		ParseErrors(stderr))
}

func TestParseErrorsStructuredEmptyFallsBack(t *testing.T) {
	// An errors array with no usable messages falls back to line parsing.
	assert.Equal(t, []string{`{"errors":[{"message":""}]}`}, ParseErrors(`{"errors":[{"message":""}]}`))
}

func TestParseErrorsUnstructuredLine(t *testing.T) {
	assert.Equal(t, []string{"something went wrong"}, ParseErrors("something went wrong\n"))
}
