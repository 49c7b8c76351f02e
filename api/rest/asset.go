package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charvault/server/algorand"
	"github.com/charvault/server/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AssetHandler handles on-chain asset endpoints. The chain client may be
// nil (no algod node configured), in which case every endpoint returns
// 503.
type AssetHandler struct {
	svc    *storage.Service
	chain  *algorand.Client
	vault  storage.SecretStore
	logger *zap.Logger
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(svc *storage.Service, chain *algorand.Client, vault storage.SecretStore, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{svc: svc, chain: chain, vault: vault, logger: logger}
}

type createAssetRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=32"`
	UnitName    string `json:"unit_name" binding:"required,min=1,max=8"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Total       uint64 `json:"total"`
	Decimals    uint32 `json:"decimals"`
}

// CreateAsset handles POST /api/characters/:key/asset. It mints an ASA
// signed by the character's own wallet, then records the asset on the
// character through the normal update path (re-pin, archive, index).
func (h *AssetHandler) CreateAsset(c *gin.Context) {
	if h.chain == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "algorand not configured"})
		return
	}

	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored, wallet, ok := h.characterWallet(c)
	if !ok {
		return
	}

	result, err := h.chain.CreateAsset(c.Request.Context(), wallet, algorand.AssetParams{
		Name:     req.Name,
		UnitName: req.UnitName,
		URL:      req.URL,
		Total:    req.Total,
		Decimals: req.Decimals,
	})
	if err != nil {
		h.logger.Error("asset creation failed",
			zap.Int64("character_id", stored.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "asset creation failed"})
		return
	}

	patch := storage.CharacterPatch{
		Asset: &storage.AssetPatch{
			AssetID:     &result.AssetID,
			Name:        &req.Name,
			UnitName:    &req.UnitName,
			URL:         &req.URL,
			Description: &req.Description,
			TxID:        &result.TxID,
		},
	}
	updated, err := h.svc.UpdateCharacter(c.Request.Context(), stored.ID, patch)
	if err != nil {
		// The asset exists on chain but could not be recorded. Surface
		// both facts so the caller can retry the record step.
		h.logger.Error("asset record failed",
			zap.Int64("character_id", stored.ID),
			zap.Uint64("asset_id", result.AssetID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "asset created on chain but recording failed",
			"asset_id": result.AssetID,
			"tx_id":    result.TxID,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"asset_id":  result.AssetID,
		"tx_id":     result.TxID,
		"character": updated,
	})
}

type transferRequest struct {
	To      string `json:"to" binding:"required"`
	AssetID uint64 `json:"asset_id" binding:"required"`
	Amount  uint64 `json:"amount" binding:"required"`
}

// Transfer handles POST /api/characters/:key/asset/transfer.
func (h *AssetHandler) Transfer(c *gin.Context) {
	if h.chain == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "algorand not configured"})
		return
	}

	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, wallet, ok := h.characterWallet(c)
	if !ok {
		return
	}

	txid, err := h.chain.Transfer(c.Request.Context(), wallet, req.To, req.AssetID, req.Amount)
	if err != nil {
		h.logger.Error("asset transfer failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "asset transfer failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txid})
}

type optInRequest struct {
	AssetID uint64 `json:"asset_id" binding:"required"`
}

// OptIn handles POST /api/characters/:key/asset/optin.
func (h *AssetHandler) OptIn(c *gin.Context) {
	if h.chain == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "algorand not configured"})
		return
	}

	var req optInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, wallet, ok := h.characterWallet(c)
	if !ok {
		return
	}

	txid, err := h.chain.OptIn(c.Request.Context(), wallet, req.AssetID)
	if err != nil {
		h.logger.Error("asset opt-in failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "asset opt-in failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tx_id": txid})
}

// Wallet handles GET /api/characters/:key/wallet. Returns the address
// always, plus on-chain balances when an algod node is configured.
func (h *AssetHandler) Wallet(c *gin.Context) {
	stored, err := h.lookup(c)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	resp := gin.H{"address": stored.AlgorandAddress}
	if h.chain != nil {
		info, err := h.chain.AccountInfo(c.Request.Context(), stored.AlgorandAddress)
		if err != nil {
			h.logger.Warn("account info lookup failed",
				zap.String("address", stored.AlgorandAddress),
				zap.Error(err),
			)
		} else {
			resp["balance"] = info.Amount
			resp["assets"] = info.Assets
		}
	}
	c.JSON(http.StatusOK, resp)
}

// AssetInfo handles GET /api/assets/:id.
func (h *AssetHandler) AssetInfo(c *gin.Context) {
	if h.chain == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "algorand not configured"})
		return
	}

	assetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	info, err := h.chain.AssetInfo(c.Request.Context(), assetID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// characterWallet resolves :key and reconstructs the character's wallet
// from its sealed mnemonic. Writes the error response itself on failure.
func (h *AssetHandler) characterWallet(c *gin.Context) (*storage.StoredCharacter, *algorand.Wallet, bool) {
	stored, err := h.lookup(c)
	if err != nil {
		h.respondLookupError(c, err)
		return nil, nil, false
	}

	phrase, err := h.vault.Get(c.Request.Context(), stored.ID)
	if err != nil {
		h.logger.Error("mnemonic lookup failed", zap.Int64("character_id", stored.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallet unavailable"})
		return nil, nil, false
	}

	wallet, err := algorand.WalletFromMnemonic(phrase)
	if err != nil {
		h.logger.Error("wallet recovery failed", zap.Int64("character_id", stored.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wallet unavailable"})
		return nil, nil, false
	}
	return stored, wallet, true
}

func (h *AssetHandler) lookup(c *gin.Context) (*storage.StoredCharacter, error) {
	key := c.Param("key")
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return h.svc.GetCharacterByID(c.Request.Context(), id)
	}
	return h.svc.GetCharacterByName(c.Request.Context(), key)
}

func (h *AssetHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
	case errors.Is(err, storage.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage closed"})
	default:
		h.logger.Error("character lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
