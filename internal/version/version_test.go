package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentPrefersLdflags(t *testing.T) {
	oldV, oldC, oldD := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldV, oldC, oldD })

	Version, GitCommit, BuildDate = "v1.2.3", "abc123", "2026-01-02"
	b := Current()
	assert.Equal(t, Build{Version: "v1.2.3", GitCommit: "abc123", BuildDate: "2026-01-02"}, b)
	assert.Equal(t, "v1.2.3 (commit: abc123, built: 2026-01-02)", b.String())

	v, c, d := Info()
	assert.Equal(t, []string{"v1.2.3", "abc123", "2026-01-02"}, []string{v, c, d})
}

func TestCurrentNeverEmpty(t *testing.T) {
	b := Current()
	assert.NotEmpty(t, b.Version)
	assert.NotEmpty(t, b.GitCommit)
	assert.NotEmpty(t, b.BuildDate)
}
