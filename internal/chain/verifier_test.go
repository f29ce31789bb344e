package chain

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"crosschain-lending-go/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVault = "0x00000000000000000000000000000000000000aa"

type fakeEVMClient struct {
	chainID *big.Int
	tx      *gethtypes.Transaction
	pending bool
	receipt *gethtypes.Receipt
	head    *big.Int
}

func (f *fakeEVMClient) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeEVMClient) TransactionByHash(_ context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error) {
	if f.tx == nil || f.tx.Hash() != hash {
		return nil, false, ethereum.NotFound
	}
	return f.tx, f.pending, nil
}

func (f *fakeEVMClient) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	if f.receipt == nil || f.tx == nil || f.tx.Hash() != hash {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeEVMClient) HeaderByNumber(_ context.Context, number *big.Int) (*gethtypes.Header, error) {
	if number == nil {
		return &gethtypes.Header{Number: f.head, Time: 1735689700}, nil
	}
	return &gethtypes.Header{Number: number, Time: 1735689600}, nil
}

func signedTransfer(t *testing.T, to common.Address, wei *big.Int) (*gethtypes.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    1,
		To:       &to,
		Value:    wei,
		Gas:      21000,
		GasPrice: big.NewInt(1_000_000_000),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)
	return signed, crypto.PubkeyToAddress(key.PublicKey)
}

func twoEther() *big.Int {
	wei, _ := new(big.Int).SetString("2000000000000000000", 10)
	return wei
}

func TestEVMVerifier_VerifiesVaultTransfer(t *testing.T) {
	tx, from := signedTransfer(t, common.HexToAddress(testVault), twoEther())
	client := &fakeEVMClient{
		chainID: big.NewInt(1),
		tx:      tx,
		receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
		head:    big.NewInt(110),
	}
	v, err := NewEVMVerifier(client, testVault, 6)
	require.NoError(t, err)

	transfer, err := v.VerifyTransfer(context.Background(), Lookup{TxHash: tx.Hash().Hex(), Chain: models.ChainETH})
	require.NoError(t, err)

	assert.True(t, transfer.Amount.Equal(decimal.NewFromInt(2)), transfer.Amount.String())
	assert.Equal(t, models.NormalizeAddress(from.Hex()), transfer.From)
	assert.Equal(t, testVault, transfer.To)
	assert.Equal(t, int64(1735689600), transfer.BlockTime.Unix())
}

func TestEVMVerifier_Rejections(t *testing.T) {
	vault := common.HexToAddress(testVault)
	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	cases := []struct {
		name    string
		to      common.Address
		status  uint64
		pending bool
		head    int64
		wantErr error
	}{
		{name: "wrong recipient", to: other, status: gethtypes.ReceiptStatusSuccessful, head: 200, wantErr: ErrWrongRecipient},
		{name: "reverted", to: vault, status: gethtypes.ReceiptStatusFailed, head: 200, wantErr: ErrTransferFailed},
		{name: "pending", to: vault, status: gethtypes.ReceiptStatusSuccessful, pending: true, head: 200, wantErr: ErrInsufficientConfirmations},
		{name: "too recent", to: vault, status: gethtypes.ReceiptStatusSuccessful, head: 101, wantErr: ErrInsufficientConfirmations},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx, _ := signedTransfer(t, tc.to, twoEther())
			client := &fakeEVMClient{
				chainID: big.NewInt(1),
				tx:      tx,
				pending: tc.pending,
				receipt: &gethtypes.Receipt{Status: tc.status, BlockNumber: big.NewInt(100)},
				head:    big.NewInt(tc.head),
			}
			v, err := NewEVMVerifier(client, testVault, 6)
			require.NoError(t, err)

			_, err = v.VerifyTransfer(context.Background(), Lookup{TxHash: tx.Hash().Hex(), Chain: models.ChainETH})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestEVMVerifier_UnknownHash(t *testing.T) {
	v, err := NewEVMVerifier(&fakeEVMClient{chainID: big.NewInt(1)}, testVault, 0)
	require.NoError(t, err)

	_, err = v.VerifyTransfer(context.Background(), Lookup{TxHash: common.Hash{1}.Hex(), Chain: models.ChainETH})
	assert.ErrorIs(t, err, ErrTransferNotFound)

	_, err = v.VerifyTransfer(context.Background(), Lookup{TxHash: "0xshort", Chain: models.ChainETH})
	assert.ErrorIs(t, err, ErrTransferNotFound)
}

func TestNewEVMVerifier_InvalidVault(t *testing.T) {
	_, err := NewEVMVerifier(&fakeEVMClient{}, "vault.near", 0)
	assert.Error(t, err)
}

func nearServer(t *testing.T, respond func(params map[string]interface{}) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Method string                 `json:"method"`
			Params map[string]interface{} `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "tx", req.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(respond(req.Params)))
	}))
}

func TestNearVerifier_SumsTransferActions(t *testing.T) {
	srv := nearServer(t, func(params map[string]interface{}) string {
		assert.Equal(t, "alice.near", params["sender_account_id"])
		assert.Equal(t, "FINAL", params["wait_until"])
		return `{"jsonrpc":"2.0","id":"lending","result":{
			"status":{"SuccessValue":""},
			"transaction":{"signer_id":"alice.near","receiver_id":"vault.near","actions":[
				{"Transfer":{"deposit":"150000000000000000000000000"}},
				"CreateAccount",
				{"Transfer":{"deposit":"50000000000000000000000000"}}
			]}}}`
	})
	defer srv.Close()

	v, err := NewNearVerifier(srv.URL, "Vault.near", srv.Client())
	require.NoError(t, err)

	transfer, err := v.VerifyTransfer(context.Background(), Lookup{TxHash: "9fXHash", Chain: models.ChainNEAR, Sender: "Alice.near"})
	require.NoError(t, err)
	assert.True(t, transfer.Amount.Equal(decimal.NewFromInt(200)), transfer.Amount.String())
	assert.Equal(t, "alice.near", transfer.From)
	assert.Equal(t, "9fXHash", transfer.TxHash)
}

func TestNearVerifier_Rejections(t *testing.T) {
	cases := map[string]struct {
		body    string
		wantErr error
	}{
		"unknown": {
			body:    `{"jsonrpc":"2.0","id":"lending","error":{"name":"HANDLER_ERROR","cause":{"name":"UNKNOWN_TRANSACTION"}}}`,
			wantErr: ErrTransferNotFound,
		},
		"failed": {
			body:    `{"jsonrpc":"2.0","id":"lending","result":{"status":{"Failure":{}},"transaction":{"receiver_id":"vault.near","actions":[]}}}`,
			wantErr: ErrTransferFailed,
		},
		"wrong receiver": {
			body:    `{"jsonrpc":"2.0","id":"lending","result":{"status":{"SuccessValue":""},"transaction":{"receiver_id":"bob.near","actions":[{"Transfer":{"deposit":"1"}}]}}}`,
			wantErr: ErrWrongRecipient,
		},
		"function call only": {
			body:    `{"jsonrpc":"2.0","id":"lending","result":{"status":{"SuccessValue":""},"transaction":{"receiver_id":"vault.near","actions":[{"FunctionCall":{"deposit":"0"}}]}}}`,
			wantErr: ErrTransferFailed,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := nearServer(t, func(map[string]interface{}) string { return tc.body })
			defer srv.Close()

			v, err := NewNearVerifier(srv.URL, "vault.near", srv.Client())
			require.NoError(t, err)

			_, err = v.VerifyTransfer(context.Background(), Lookup{TxHash: "h", Chain: models.ChainNEAR, Sender: "alice.near"})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestNearVerifier_RequiresSender(t *testing.T) {
	v, err := NewNearVerifier("http://127.0.0.1:1", "vault.near", nil)
	require.NoError(t, err)

	_, err = v.VerifyTransfer(context.Background(), Lookup{TxHash: "h", Chain: models.ChainNEAR})
	assert.ErrorIs(t, err, ErrSenderRequired)
}

func TestRouter_Dispatch(t *testing.T) {
	static := NewStaticVerifier(Transfer{TxHash: "0xABC", Chain: models.ChainETH, From: "0xAlice", Amount: decimal.NewFromInt(2)})
	router := NewRouter().Register(models.ChainETH, static)

	transfer, err := router.VerifyTransfer(context.Background(), Lookup{TxHash: "0xabc", Chain: models.ChainETH})
	require.NoError(t, err)
	assert.Equal(t, "0xalice", transfer.From)

	_, err = router.VerifyTransfer(context.Background(), Lookup{TxHash: "x", Chain: models.ChainNEAR})
	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestLoadStaticVerifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.yaml")
	content := "transfers:\n" +
		"  - tx_hash: 0xAbC\n    chain: eth\n    from: 0xalice\n    amount: \"2\"\n" +
		"  - tx_hash: nearHash\n    chain: near\n    from: alice.near\n    amount: \"500\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v, err := LoadStaticVerifier(path)
	require.NoError(t, err)

	eth, err := v.VerifyTransfer(context.Background(), Lookup{TxHash: "0xabc", Chain: models.ChainETH})
	require.NoError(t, err)
	assert.True(t, eth.Amount.Equal(decimal.NewFromInt(2)))

	near, err := v.VerifyTransfer(context.Background(), Lookup{TxHash: "nearHash", Chain: models.ChainNEAR})
	require.NoError(t, err)
	assert.True(t, near.Amount.Equal(decimal.NewFromInt(500)))

	_, err = v.VerifyTransfer(context.Background(), Lookup{TxHash: "nearhash", Chain: models.ChainNEAR})
	assert.ErrorIs(t, err, ErrTransferNotFound)
}
