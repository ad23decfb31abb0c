package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	client, err = New(context.Background(), "redis://"+mr.Addr()+"/2")
	require.NoError(t, err)
	require.Equal(t, 2, client.Options().DB)
	_ = client.Close()
}

func TestNewRejectsBadAddress(t *testing.T) {
	_, err := New(context.Background(), "")
	require.Error(t, err)

	_, err = New(context.Background(), "redis://127.0.0.1:6379/notadb")
	require.Error(t, err)
}
