package users

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstLine(t *testing.T) {
	p, err := firstLine(strings.NewReader("s3cr3t\nignored\n"))
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", string(p))

	p, err = firstLine(strings.NewReader("with spaces \r\n"))
	require.NoError(t, err)
	require.Equal(t, "with spaces ", string(p))

	_, err = firstLine(strings.NewReader(""))
	require.Error(t, err)
	_, err = firstLine(strings.NewReader("\n"))
	require.Error(t, err)
}
