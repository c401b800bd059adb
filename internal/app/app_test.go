package app

import (
	"context"
	"testing"

	"libraryapi/internal/book"
	"libraryapi/internal/circulation"
	"libraryapi/internal/config"
	"libraryapi/internal/platform/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MemoryStore(t *testing.T) {
	cfg := config.Config{Store: config.StoreMemory, JWTSecret: "s", Policy: circulation.DefaultPolicy(), SweepLimit: 10}

	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.Ready(context.Background()))
	assert.Nil(t, a.Index)

	ctx := context.Background()
	b := book.Book{Title: "Dune", Author: "Frank Herbert", Quantity: 1}
	require.NoError(t, a.Books.Create(ctx, &b))

	_, err = a.Circulation.CreateReservation(ctx, "u1", b.ID)
	require.NoError(t, err)

	got, err := a.Books.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity, "circulation takes copies through the book service")
}

func TestNew_ImporterFollowsConfig(t *testing.T) {
	cfg := config.Config{Store: config.StoreMemory, JWTSecret: "s", Policy: circulation.DefaultPolicy()}

	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, a.Importer)

	cfg.OpenLibraryURL, cfg.OpenLibraryRPS = "http://127.0.0.1:1", 1
	a, err = New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, a.Importer)
}
