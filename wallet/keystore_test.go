package wallet_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/wallet"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "seller.key")

	require.NoError(t, wallet.SaveKey(path, "hunter2", w.PrivKey()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	identity, err := wallet.KeyIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, w.PubKey(), identity)

	priv, err := wallet.LoadKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.PubKey(), wallet.New(priv).PubKey())

	_, err = wallet.LoadKey(path, "wrong")
	assert.ErrorIs(t, err, wallet.ErrWrongPassword)
}

func TestLoadKeyRejectsSwappedIdentity(t *testing.T) {
	a, _ := wallet.Generate()
	b, _ := wallet.Generate()
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.key")
	require.NoError(t, wallet.SaveKey(pathA, "pw", a.PrivKey()))

	data, err := os.ReadFile(pathA)
	require.NoError(t, err)
	forged := []byte(strings.Replace(string(data), a.PubKey(), b.PubKey(), 1))
	pathB := filepath.Join(dir, "b.key")
	require.NoError(t, os.WriteFile(pathB, forged, 0o600))

	_, err = wallet.LoadKey(pathB, "pw")
	assert.ErrorContains(t, err, "does not match identity")
}

func TestWalletBuildsMarketplaceTransactions(t *testing.T) {
	w, _ := wallet.Generate()

	tx, err := w.BuyItem("chain", 7, 2, 300, 4, 1)
	require.NoError(t, err)
	assert.NoError(t, tx.Verify())
	assert.Equal(t, w.PubKey(), tx.From)
	assert.Equal(t, uint64(4), tx.Nonce)
	assert.JSONEq(t, `{"item_id":7,"quantity":2,"payment":300}`, string(tx.Payload))

	tx, err = w.TransferAdmin("chain", "ab", 0, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"new_admin":"ab"}`, string(tx.Payload))
}
