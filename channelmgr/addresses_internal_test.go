package channelmgr

import (
	"testing"

	"github.com/opd-ai/channelmgr/bus"
	"github.com/opd-ai/channelmgr/kex"
	"github.com/opd-ai/channelmgr/vault"
	"github.com/opd-ai/channelmgr/vault/memvault"
	"github.com/stretchr/testify/require"
)

// TestCreateChannelAddressesAreCollisionFree exercises createChannel well
// past any realistic single-manager lifetime load and asserts every
// rendered cleartext and ciphertext address is distinct, per spec
// invariant §8 ("Address uniqueness ... tests must assert collision-free
// creation for N <= 1000").
func TestCreateChannelAddressesAreCollisionFree(t *testing.T) {
	v := memvault.New()
	rx := make(chan bus.ChannelCommand, 1)
	routerTx := make(chan bus.RouterCommand, 1)

	m, err := New(rx, rx, routerTx, v, nil, vault.NoKey, vault.NoKey)
	require.NoError(t, err)

	const n = 1000
	seen := make(map[string]struct{}, n*2)
	for i := 0; i < n; i++ {
		ch, err := m.createChannel(kex.Initiator, nil)
		require.NoError(t, err)

		clear := ch.ClearAddress().String()
		_, dup := seen[clear]
		require.Falsef(t, dup, "duplicate cleartext address at iteration %d", i)
		seen[clear] = struct{}{}

		cipher := ch.CipherAddress().String()
		_, dup = seen[cipher]
		require.Falsef(t, dup, "duplicate ciphertext address at iteration %d", i)
		seen[cipher] = struct{}{}
	}
}
