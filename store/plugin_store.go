package store

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/flowcore/dispatch"
	"github.com/BaSui01/flowcore/types"
)

// Validator checks plugin code before it is stored.
type Validator interface {
	Validate(code string) error
}

// NewPlugin describes a plugin to create.
type NewPlugin struct {
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
	CreatedBy   string `json:"created_by"`
}

// PluginStore 插件存储, 创建时先经过沙箱校验.
type PluginStore struct {
	db        *gorm.DB
	validator Validator
	logger    *zap.Logger
}

// NewPluginStore creates a PluginStore. A nil validator accepts any code.
func NewPluginStore(db *gorm.DB, validator Validator, logger *zap.Logger) *PluginStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PluginStore{db: db, validator: validator, logger: logger.With(zap.String("component", "plugin_store"))}
}

// Create validates and inserts a plugin. Names are unique per tenant.
func (s *PluginStore) Create(ctx context.Context, in NewPlugin) (*Plugin, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, types.NewBadRequestError(types.ErrInvalidRequest, "Plugin name is required")
	}
	if s.validator != nil {
		if err := s.validator.Validate(in.Code); err != nil {
			return nil, err
		}
	}

	p := &Plugin{
		ID:          uuid.NewString(),
		TenantID:    in.TenantID,
		Name:        in.Name,
		Description: in.Description,
		Code:        in.Code,
		CreatedBy:   in.CreatedBy,
		IsActive:    true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Plugin{}).
			Where("tenant_id = ? AND name = ?", in.TenantID, in.Name).
			Count(&n).Error; err != nil {
			return storageError("check plugin name", err)
		}
		if n > 0 {
			return types.NewBadRequestError(types.ErrInvalidRequest, "Plugin name already exists")
		}
		if err := tx.Create(p).Error; err != nil {
			return storageError("create plugin", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("plugin created",
		zap.String("plugin_id", p.ID),
		zap.String("tenant_id", p.TenantID),
		zap.String("name", p.Name))
	return p, nil
}

// Get returns a plugin of the caller's tenant, or nil when absent.
func (s *PluginStore) Get(ctx context.Context, pluginID string) (*Plugin, error) {
	var p Plugin
	err := scopeTenant(ctx, s.db.WithContext(ctx)).Where("id = ?", pluginID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load plugin", err)
	}
	return &p, nil
}

// GetPlugin implements dispatch.PluginSource. Tenant matching is left to the dispatcher.
func (s *PluginStore) GetPlugin(ctx context.Context, pluginID string) (*dispatch.Plugin, error) {
	var p Plugin
	err := s.db.WithContext(ctx).Where("id = ?", pluginID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load plugin", err)
	}
	return &dispatch.Plugin{
		ID:       p.ID,
		TenantID: p.TenantID,
		Name:     p.Name,
		Code:     p.Code,
		Active:   p.IsActive,
	}, nil
}

// ListActive returns the tenant's active plugins ordered by name.
func (s *PluginStore) ListActive(ctx context.Context, tenantID string) ([]Plugin, error) {
	var out []Plugin
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name").
		Find(&out).Error
	if err != nil {
		return nil, storageError("list plugins", err)
	}
	return out, nil
}

// SetActive enables or disables a plugin of the caller's tenant.
func (s *PluginStore) SetActive(ctx context.Context, pluginID string, active bool) error {
	res := scopeTenant(ctx, s.db.WithContext(ctx).Model(&Plugin{})).
		Where("id = ?", pluginID).
		Update("is_active", active)
	if res.Error != nil {
		return storageError("update plugin", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrDispatchPluginNotFound, "Plugin not found").
			WithHTTPStatus(http.StatusNotFound)
	}
	return nil
}

// Delete removes a plugin of the caller's tenant.
func (s *PluginStore) Delete(ctx context.Context, pluginID string) error {
	res := scopeTenant(ctx, s.db.WithContext(ctx)).Where("id = ?", pluginID).Delete(&Plugin{})
	if res.Error != nil {
		return storageError("delete plugin", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrDispatchPluginNotFound, "Plugin not found").
			WithHTTPStatus(http.StatusNotFound)
	}
	return nil
}

var _ dispatch.PluginSource = (*PluginStore)(nil)
