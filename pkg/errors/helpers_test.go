package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	sopErrors "github.com/joyshmitz/zeroclaw/pkg/errors"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, sopErrors.Wrap(nil, "context"))
}

func TestWrapPreservesChain(t *testing.T) {
	root := sopErrors.New("root cause")
	wrapped := sopErrors.Wrap(root, "loading catalogue")

	assert.Contains(t, wrapped.Error(), "loading catalogue")
	assert.Contains(t, wrapped.Error(), "root cause")
	assert.True(t, sopErrors.Is(wrapped, root))
}

func TestWrapf(t *testing.T) {
	root := sopErrors.New("not found")
	wrapped := sopErrors.Wrapf(root, "sop %q", "demo")
	assert.Contains(t, wrapped.Error(), `sop "demo"`)
}
