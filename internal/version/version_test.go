package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetShortCommit(t *testing.T) {
	orig := GitCommit
	defer func() { GitCommit = orig }()

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "0123456", GetShortCommit())

	GitCommit = "abc"
	assert.Equal(t, "abc", GetShortCommit())
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.GitCommit)
	assert.Equal(t, BuildDate, info.BuildDate)
}
