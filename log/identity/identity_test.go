package identity_test

import (
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zircuit-labs/zkr-taskworker/log/identity"
)

func TestWhoAmI(t *testing.T) {
	t.Parallel()

	name, id := identity.WhoAmI()
	assert.Equal(t, "unknown", name)

	_, err := xid.FromString(id)
	require.NoError(t, err)

	_, again := identity.WhoAmI()
	assert.Equal(t, id, again)
}
