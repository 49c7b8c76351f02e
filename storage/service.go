package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/charvault/server/hook"
	"github.com/charvault/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pinner uploads a payload to a content-addressed remote store and
// returns the content hash plus a public gateway URL.
type Pinner interface {
	Pin(ctx context.Context, name string, payload map[string]interface{}) (hash string, url string, err error)
}

// AccountSource generates fresh blockchain accounts. Generation is
// offline; no network call is implied.
type AccountSource interface {
	GenerateAccount() (address string, mnemonic string, err error)
}

// SecretStore keeps wallet mnemonics out of the main index table.
type SecretStore interface {
	Put(ctx context.Context, characterID int64, secret string) error
	Get(ctx context.Context, characterID int64) (string, error)
	Delete(ctx context.Context, characterID int64) error
}

// Service orchestrates the three character stores: the relational index
// (authoritative for canonical fields), the local archive (full payload
// mirror) and the remote pin (content-addressed copy). Consistency is an
// ordered, idempotent sequence rather than a transaction: account → pin
// → archive → index. A crash between archive and index leaves an
// orphaned snapshot, which the sweeper reclaims later.
type Service struct {
	db       *gorm.DB
	pinner   Pinner
	accounts AccountSource
	secrets  SecretStore
	archive  *Archive
	hooks    *hook.Center
	logger   *zap.Logger
	closed   atomic.Bool
}

// NewService builds a ready Service. Schema initialization happens here,
// synchronously, so callers never race a lazy init; the constructor
// either returns a usable handle or an error.
func NewService(db *gorm.DB, pinner Pinner, accounts AccountSource, secrets SecretStore, archive *Archive, hooks *hook.Center, logger *zap.Logger) (*Service, error) {
	if err := model.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("storage: initialize schema: %w", err)
	}
	return &Service{
		db:       db,
		pinner:   pinner,
		accounts: accounts,
		secrets:  secrets,
		archive:  archive,
		hooks:    hooks,
		logger:   logger,
	}, nil
}

// StoreCharacter creates a character: generate a wallet, pin the payload
// (with the wallet address embedded), mirror it to the local archive,
// then insert the index row. A failure before the insert leaves no row;
// a failure at the insert leaves only an orphaned snapshot.
func (s *Service) StoreCharacter(ctx context.Context, data CharacterData) (*StoredCharacter, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if data.Type == "" {
		data.Type = model.DefaultCharacterType
	}

	address, mnemonicPhrase, err := s.accounts.GenerateAccount()
	if err != nil {
		s.logger.Error("account generation failed", zap.Error(err))
		return nil, fmt.Errorf("storage: generate account: %w", err)
	}

	payload := data.payload()
	payload["algorand_address"] = address

	hash, url, err := s.pinner.Pin(ctx, data.Name, payload)
	if err != nil {
		s.logger.Error("pin failed", zap.String("name", data.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	payload["ipfs_hash"] = hash
	payload["ipfs_url"] = url

	snap, err := s.archive.Write(data.Name, payload)
	if err != nil {
		s.logger.Error("archive write failed", zap.String("name", data.Name), zap.Error(err))
		return nil, err
	}

	row := &model.Character{
		Name:            data.Name,
		Description:     data.Description,
		Type:            data.Type,
		Theme:           data.Theme,
		Goal:            data.Goal,
		Antagonist:      data.Antagonist,
		IPFSHash:        hash,
		IPFSURL:         url,
		AlgorandAddress: address,
		LocalFilePath:   snap.Path,
	}
	if data.TwitterHandle != "" {
		row.TwitterHandle = &data.TwitterHandle
	}
	if data.Asset != nil {
		applyAssetToRow(row, data.Asset)
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", ErrNameTaken, data.Name)
		}
		s.logger.Error("index insert failed", zap.String("name", data.Name), zap.Error(err))
		return nil, fmt.Errorf("storage: insert character: %w", err)
	}

	if err := s.secrets.Put(ctx, row.ID, mnemonicPhrase); err != nil {
		// Without the mnemonic the wallet is unrecoverable; undo the insert.
		s.db.WithContext(ctx).Delete(&model.Character{}, row.ID)
		s.logger.Error("mnemonic store failed", zap.Int64("id", row.ID), zap.Error(err))
		return nil, fmt.Errorf("storage: store mnemonic: %w", err)
	}

	s.logger.Info("character stored",
		zap.Int64("id", row.ID),
		zap.String("name", row.Name),
		zap.String("ipfs_hash", hash),
		zap.String("address", address),
	)
	s.trigger(ctx, hook.EventCharacterStored, row.ID, row.Name)

	return viewFromRow(row, data.Extra), nil
}

// GetCharacterByName returns the merged view for a character, or
// ErrNotFound. When the archive snapshot is unreadable the index row
// alone is served; availability wins over completeness.
func (s *Service) GetCharacterByName(ctx context.Context, name string) (*StoredCharacter, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var row model.Character
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get character: %w", err)
	}
	return s.mergeRow(&row), nil
}

// GetCharacterByID is GetCharacterByName addressed by surrogate key.
func (s *Service) GetCharacterByID(ctx context.Context, id int64) (*StoredCharacter, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var row model.Character
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get character: %w", err)
	}
	return s.mergeRow(&row), nil
}

// ListCharacters returns index-row summaries ordered by creation time,
// newest first. No archive merge happens here; the row's JSON encoding
// already excludes the local file path, and mnemonics live elsewhere.
func (s *Service) ListCharacters(ctx context.Context) ([]model.Character, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var rows []model.Character
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list characters: %w", err)
	}
	return rows, nil
}

// UpdateCharacter re-pins the patch payload (with the character's
// immutable wallet address), writes a fresh archive snapshot, then
// applies a sparse column update. The previous snapshot is orphaned, not
// deleted. The result is re-read through the merge path so it reflects
// the same archive-fallback behavior as a plain get.
func (s *Service) UpdateCharacter(ctx context.Context, id int64, patch CharacterPatch) (*StoredCharacter, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var row model.Character
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get character: %w", err)
	}

	payload := patch.payload(row.Name)
	payload["algorand_address"] = row.AlgorandAddress

	hash, url, err := s.pinner.Pin(ctx, row.Name, payload)
	if err != nil {
		s.logger.Error("pin failed", zap.String("name", row.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	payload["ipfs_hash"] = hash
	payload["ipfs_url"] = url

	snap, err := s.archive.Write(row.Name, payload)
	if err != nil {
		s.logger.Error("archive write failed", zap.String("name", row.Name), zap.Error(err))
		return nil, err
	}

	updates := patch.updates(hash, url, snap.Path, time.Now())
	if err := s.db.WithContext(ctx).Model(&model.Character{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("storage: update character: %w", err)
	}

	s.logger.Info("character updated",
		zap.Int64("id", id),
		zap.String("name", row.Name),
		zap.String("ipfs_hash", hash),
	)
	s.trigger(ctx, hook.EventCharacterUpdated, id, row.Name)

	return s.GetCharacterByName(ctx, row.Name)
}

// DeleteCharacter removes the character row, its sealed mnemonic and,
// best-effort, its archive snapshot. Deleting a nonexistent id is not an
// error.
func (s *Service) DeleteCharacter(ctx context.Context, id int64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	var row model.Character
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: get character: %w", err)
	}

	if row.LocalFilePath != "" {
		if err := os.Remove(row.LocalFilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("archive file delete failed",
				zap.Int64("id", id),
				zap.String("path", row.LocalFilePath),
				zap.Error(err),
			)
		}
	}

	if err := s.db.WithContext(ctx).Delete(&model.Character{}, id).Error; err != nil {
		return fmt.Errorf("storage: delete character: %w", err)
	}
	if err := s.secrets.Delete(ctx, id); err != nil {
		s.logger.Warn("mnemonic delete failed", zap.Int64("id", id), zap.Error(err))
	}

	s.logger.Info("character deleted", zap.Int64("id", id), zap.String("name", row.Name))
	s.trigger(ctx, hook.EventCharacterDeleted, id, row.Name)
	return nil
}

// Close releases the underlying database connection. Close is terminal:
// the service cannot be reopened, and every later operation fails with
// ErrClosed.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mergeRow reads the row's archive snapshot for extra fields and layers
// the row's canonical fields on top. Archive read failures degrade to an
// index-only view with a warning.
func (s *Service) mergeRow(row *model.Character) *StoredCharacter {
	var extra map[string]interface{}
	if row.LocalFilePath != "" {
		payload, err := s.archive.Read(row.LocalFilePath)
		if err != nil {
			s.logger.Warn("archive read failed, serving index data only",
				zap.Int64("id", row.ID),
				zap.String("path", row.LocalFilePath),
				zap.Error(err),
			)
		} else {
			extra = extraFields(payload)
		}
	}
	return viewFromRow(row, extra)
}

func (s *Service) trigger(ctx context.Context, event string, id int64, name string) {
	if s.hooks == nil {
		return
	}
	data := map[string]interface{}{"id": id, "name": name}
	if _, err := s.hooks.Trigger(ctx, event, data); err != nil && !errors.Is(err, hook.ErrInterrupt) {
		s.logger.Warn("hook failed", zap.String("event", event), zap.Error(err))
	}
}

// extraFields strips the canonical (index-tracked) keys from an archive
// payload, leaving only the fields the index does not know about.
func extraFields(payload map[string]interface{}) map[string]interface{} {
	for _, k := range canonicalKeys {
		delete(payload, k)
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}

func applyAssetToRow(row *model.Character, a *AssetData) {
	id := a.AssetID
	row.AssetID = &id
	if a.Name != "" {
		v := a.Name
		row.AssetName = &v
	}
	if a.UnitName != "" {
		v := a.UnitName
		row.AssetUnitName = &v
	}
	if a.URL != "" {
		v := a.URL
		row.AssetURL = &v
	}
	if a.Description != "" {
		v := a.Description
		row.AssetDescription = &v
	}
	if a.TxID != "" {
		v := a.TxID
		row.AssetTxID = &v
	}
}

func viewFromRow(row *model.Character, extra map[string]interface{}) *StoredCharacter {
	view := &StoredCharacter{
		ID:              row.ID,
		Name:            row.Name,
		Type:            row.Type,
		Description:     row.Description,
		Theme:           row.Theme,
		Goal:            row.Goal,
		Antagonist:      row.Antagonist,
		IPFSHash:        row.IPFSHash,
		IPFSURL:         row.IPFSURL,
		AlgorandAddress: row.AlgorandAddress,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		Extra:           extra,
	}
	if row.TwitterHandle != nil {
		view.TwitterHandle = *row.TwitterHandle
	}
	if row.AssetID != nil {
		asset := &AssetData{AssetID: *row.AssetID}
		if row.AssetName != nil {
			asset.Name = *row.AssetName
		}
		if row.AssetUnitName != nil {
			asset.UnitName = *row.AssetUnitName
		}
		if row.AssetURL != nil {
			asset.URL = *row.AssetURL
		}
		if row.AssetDescription != nil {
			asset.Description = *row.AssetDescription
		}
		if row.AssetTxID != nil {
			asset.TxID = *row.AssetTxID
		}
		view.Asset = asset
	}
	return view
}
