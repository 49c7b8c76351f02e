package algorand

import (
	"context"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/client/v2/algod"
	"github.com/algorand/go-algorand-sdk/v2/client/v2/common/models"
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/charvault/server/config"
	"go.uber.org/zap"
)

// Defaults matching the dashboard's token creation form.
const (
	DefaultAssetTotal    = 1_000_000
	DefaultAssetDecimals = 0
)

// AssetParams describes an ASA to create.
type AssetParams struct {
	Name          string
	UnitName      string
	URL           string
	Total         uint64
	Decimals      uint32
	DefaultFrozen bool
}

// AssetResult is the outcome of a confirmed asset creation.
type AssetResult struct {
	AssetID uint64 `json:"asset_id"`
	TxID    string `json:"tx_id"`
}

// Client performs ASA operations against an algod node. The character
// backend works without one (asset endpoints are then disabled).
type Client struct {
	algod      *algod.Client
	waitRounds uint64
	logger     *zap.Logger
}

// NewClient connects to the configured algod node. Returns (nil, nil)
// when no node URL is configured.
func NewClient(cfg config.AlgorandConfig, logger *zap.Logger) (*Client, error) {
	if cfg.AlgodURL == "" {
		return nil, nil
	}
	ac, err := algod.MakeClient(cfg.AlgodURL, cfg.AlgodToken)
	if err != nil {
		return nil, fmt.Errorf("algorand: algod client: %w", err)
	}
	waitRounds := cfg.WaitRounds
	if waitRounds == 0 {
		waitRounds = 4
	}
	return &Client{algod: ac, waitRounds: waitRounds, logger: logger}, nil
}

// CreateAsset creates an ASA with the creator wallet as manager,
// reserve, freeze and clawback, waits for confirmation and returns the
// assigned asset id.
func (c *Client) CreateAsset(ctx context.Context, creator *Wallet, p AssetParams) (*AssetResult, error) {
	if p.Total == 0 {
		p.Total = DefaultAssetTotal
	}

	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("algorand: suggested params: %w", err)
	}

	txn, err := transaction.MakeAssetCreateTxn(
		creator.Address, nil, sp,
		p.Total, p.Decimals, p.DefaultFrozen,
		creator.Address, creator.Address, creator.Address, creator.Address,
		p.UnitName, p.Name, p.URL, "",
	)
	if err != nil {
		return nil, fmt.Errorf("algorand: build asset txn: %w", err)
	}

	txid, stx, err := crypto.SignTransaction(creator.PrivateKey, txn)
	if err != nil {
		return nil, fmt.Errorf("algorand: sign txn: %w", err)
	}
	if _, err := c.algod.SendRawTransaction(stx).Do(ctx); err != nil {
		return nil, fmt.Errorf("algorand: submit txn: %w", err)
	}

	confirmed, err := transaction.WaitForConfirmation(c.algod, txid, c.waitRounds, ctx)
	if err != nil {
		return nil, fmt.Errorf("algorand: wait for confirmation: %w", err)
	}

	c.logger.Info("asset created",
		zap.Uint64("asset_id", confirmed.AssetIndex),
		zap.String("tx_id", txid),
		zap.String("creator", creator.Address),
	)
	return &AssetResult{AssetID: confirmed.AssetIndex, TxID: txid}, nil
}

// Transfer moves amount units of an asset from the sender wallet to the
// given address. The receiver must have opted in.
func (c *Client) Transfer(ctx context.Context, sender *Wallet, to string, assetID, amount uint64) (string, error) {
	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return "", fmt.Errorf("algorand: suggested params: %w", err)
	}
	txn, err := transaction.MakeAssetTransferTxn(sender.Address, to, amount, nil, sp, "", assetID)
	if err != nil {
		return "", fmt.Errorf("algorand: build transfer txn: %w", err)
	}
	txid, stx, err := crypto.SignTransaction(sender.PrivateKey, txn)
	if err != nil {
		return "", fmt.Errorf("algorand: sign txn: %w", err)
	}
	if _, err := c.algod.SendRawTransaction(stx).Do(ctx); err != nil {
		return "", fmt.Errorf("algorand: submit txn: %w", err)
	}
	if _, err := transaction.WaitForConfirmation(c.algod, txid, c.waitRounds, ctx); err != nil {
		return "", fmt.Errorf("algorand: wait for confirmation: %w", err)
	}
	return txid, nil
}

// OptIn opts the wallet into an asset (a zero-amount self transfer).
func (c *Client) OptIn(ctx context.Context, w *Wallet, assetID uint64) (string, error) {
	sp, err := c.algod.SuggestedParams().Do(ctx)
	if err != nil {
		return "", fmt.Errorf("algorand: suggested params: %w", err)
	}
	txn, err := transaction.MakeAssetAcceptanceTxn(w.Address, nil, sp, assetID)
	if err != nil {
		return "", fmt.Errorf("algorand: build opt-in txn: %w", err)
	}
	txid, stx, err := crypto.SignTransaction(w.PrivateKey, txn)
	if err != nil {
		return "", fmt.Errorf("algorand: sign txn: %w", err)
	}
	if _, err := c.algod.SendRawTransaction(stx).Do(ctx); err != nil {
		return "", fmt.Errorf("algorand: submit txn: %w", err)
	}
	if _, err := transaction.WaitForConfirmation(c.algod, txid, c.waitRounds, ctx); err != nil {
		return "", fmt.Errorf("algorand: wait for confirmation: %w", err)
	}
	return txid, nil
}

// AccountInfo returns the on-chain state of an address.
func (c *Client) AccountInfo(ctx context.Context, address string) (models.Account, error) {
	return c.algod.AccountInformation(address).Do(ctx)
}

// AssetInfo returns the on-chain parameters of an asset.
func (c *Client) AssetInfo(ctx context.Context, assetID uint64) (models.Asset, error) {
	return c.algod.GetAssetByID(assetID).Do(ctx)
}
