//go:build amd64

package sysaccount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveName_KnownAMD64Syscall(t *testing.T) {
	name, resolved := resolveName(1)

	assert.True(t, resolved)
	assert.Equal(t, "write", name)
}
