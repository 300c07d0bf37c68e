package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/flowcore/types"
	"github.com/BaSui01/flowcore/workflow"
)

func storageError(op string, err error) *types.Error {
	return types.NewError(types.ErrStorage, op).
		WithHTTPStatus(http.StatusInternalServerError).
		WithCause(err)
}

// scopeTenant restricts a query to the tenant carried by ctx, if any.
func scopeTenant(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tenantID, ok := types.TenantID(ctx); ok && tenantID != "" {
		return db.Where("tenant_id = ?", tenantID)
	}
	return db
}

// WorkflowStore keeps each agent's workflow graph in agent.config.
type WorkflowStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWorkflowStore creates a WorkflowStore.
func NewWorkflowStore(db *gorm.DB, logger *zap.Logger) *WorkflowStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowStore{db: db, logger: logger.With(zap.String("component", "workflow_store"))}
}

// CreateAgent inserts an agent with an empty configuration.
func (s *WorkflowStore) CreateAgent(ctx context.Context, tenantID, name string) (*Agent, error) {
	a := &Agent{ID: uuid.NewString(), TenantID: tenantID, Name: name}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, storageError("create agent", err)
	}
	return a, nil
}

func (s *WorkflowStore) agent(ctx context.Context, agentID string) (*Agent, error) {
	var a Agent
	err := scopeTenant(ctx, s.db.WithContext(ctx)).Where("id = ?", agentID).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("load agent", err)
	}
	return &a, nil
}

// Load returns the agent's workflow, or nil when the agent has none.
func (s *WorkflowStore) Load(ctx context.Context, ownerID string) (*workflow.Definition, error) {
	a, err := s.agent(ctx, ownerID)
	if err != nil || a == nil || a.Config.Workflow == nil {
		return nil, err
	}
	return &workflow.Definition{Graph: *a.Config.Workflow, UseMemory: a.Config.UseMemory}, nil
}

// Save validates g and stores it as the agent's workflow.
func (s *WorkflowStore) Save(ctx context.Context, ownerID string, g workflow.Graph) error {
	if err := workflow.ValidateShape(&g); err != nil {
		return err
	}
	return s.update(ctx, ownerID, func(cfg *AgentConfig) { cfg.Workflow = &g })
}

// SetUseMemory toggles memory assembly for the agent's runs.
func (s *WorkflowStore) SetUseMemory(ctx context.Context, ownerID string, on bool) error {
	return s.update(ctx, ownerID, func(cfg *AgentConfig) { cfg.UseMemory = on })
}

func (s *WorkflowStore) update(ctx context.Context, ownerID string, mutate func(*AgentConfig)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a Agent
		err := scopeTenant(ctx, tx).Where("id = ?", ownerID).Take(&a).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NewError(types.ErrDispatchAgentNotFound, "Agent not found").
				WithHTTPStatus(http.StatusNotFound)
		}
		if err != nil {
			return storageError("load agent", err)
		}
		mutate(&a.Config)
		if err := tx.Model(&a).Select("config", "updated_at").Updates(&a).Error; err != nil {
			return storageError("update agent", err)
		}
		s.logger.Debug("agent config updated", zap.String("owner_id", ownerID))
		return nil
	})
}

// AgentTenant reports the tenant that owns agentID.
func (s *WorkflowStore) AgentTenant(ctx context.Context, agentID string) (string, bool, error) {
	var a Agent
	err := s.db.WithContext(ctx).Select("id", "tenant_id").Where("id = ?", agentID).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("load agent", err)
	}
	return a.TenantID, true, nil
}

var _ workflow.Store = (*WorkflowStore)(nil)
