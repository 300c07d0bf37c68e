package store

import (
	"time"

	"github.com/BaSui01/flowcore/workflow"
)

// AgentConfig is the JSON document stored in agent.config.
type AgentConfig struct {
	Workflow  *workflow.Graph `json:"workflow,omitempty"`
	UseMemory bool            `json:"use_memory"`
}

// Agent owns one workflow.
type Agent struct {
	ID        string      `gorm:"primaryKey;size:36"`
	TenantID  string      `gorm:"size:36;index;not null"`
	Name      string      `gorm:"size:255;not null"`
	Config    AgentConfig `gorm:"serializer:json;type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定表名
func (Agent) TableName() string { return "agent" }

// Plugin is tenant-authored sandbox code.
type Plugin struct {
	ID          string `gorm:"primaryKey;size:36"`
	TenantID    string `gorm:"size:36;not null;uniqueIndex:idx_plugin_tenant_name"`
	Name        string `gorm:"size:255;not null;uniqueIndex:idx_plugin_tenant_name"`
	Description string `gorm:"type:text"`
	Code        string `gorm:"type:text;not null"`
	CreatedBy   string `gorm:"size:36"`
	IsActive    bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
}

// TableName 指定表名
func (Plugin) TableName() string { return "plugin" }

// MessageHistory is one persisted chat message.
type MessageHistory struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TenantID  string    `gorm:"size:36;not null"`
	AgentID   string    `gorm:"size:36;not null;index:idx_message_agent_created"`
	Role      string    `gorm:"size:10;not null"`
	Content   string    `gorm:"type:text;not null"`
	Embedding []float64 `gorm:"serializer:json;type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_message_agent_created"`
}

// TableName 指定表名
func (MessageHistory) TableName() string { return "message_history" }

// KnowledgeChunk is one retrievable passage.
type KnowledgeChunk struct {
	ID         string    `gorm:"primaryKey;size:36"`
	TenantID   string    `gorm:"size:36;not null"`
	AgentID    string    `gorm:"size:36;not null;index"`
	SourceFile string    `gorm:"size:255;not null"`
	ChunkIndex int       `gorm:"not null"`
	Text       string    `gorm:"type:text;not null"`
	Embedding  []float64 `gorm:"serializer:json;type:text;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName 指定表名
func (KnowledgeChunk) TableName() string { return "knowledge_chunk" }

// ExecutionLog records one logged workflow run.
type ExecutionLog struct {
	ID               string          `gorm:"primaryKey;size:36"`
	TenantID         string          `gorm:"size:36;index;not null"`
	AgentID          string          `gorm:"size:36;index;not null"`
	WorkflowSnapshot *workflow.Graph `gorm:"serializer:json;type:text"`
	InputContext     map[string]any  `gorm:"serializer:json;type:text"`
	OutputResult     any             `gorm:"serializer:json;type:text"`
	Status           string          `gorm:"size:20;not null"`
	DurationMS       int64           `gorm:"column:duration_ms;not null"`
	StartedAt        time.Time       `gorm:"not null"`
	FinishedAt       time.Time       `gorm:"not null"`
}

// TableName 指定表名
func (ExecutionLog) TableName() string { return "execution_log" }

// Models lists every table managed by this package.
func Models() []any {
	return []any{&Agent{}, &Plugin{}, &MessageHistory{}, &KnowledgeChunk{}, &ExecutionLog{}}
}
