package ipld_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/EpiK-Protocol/go-epik-vesting/actors/util/adt"
	"github.com/EpiK-Protocol/go-epik-vesting/support/ipld"
)

func TestBlockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := ipld.NewBlockStoreInMemory()
	store := adt.WrapBlockStore(ctx, bs)

	v := cbg.CborInt(42)
	c, err := store.Put(ctx, &v)
	require.NoError(t, err)
	require.True(t, bs.Has(c))
	require.Equal(t, 1, bs.Len())

	var out cbg.CborInt
	require.NoError(t, store.Get(ctx, c, &out))
	require.Equal(t, v, out)

	// Identical content maps to the same block.
	c2, err := store.Put(ctx, &v)
	require.NoError(t, err)
	require.Equal(t, c, c2)
	require.Equal(t, 1, bs.Len())
}
