package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"backend/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalStore 基于 JSON 文件的降级存储
// 数据库不可用时承接工厂的核心能力；每个 Agent 一个文件，
// 模板存放在 templates/ 子目录，文件名即 Agent/模板名
type LocalStore struct {
	mu  sync.Mutex
	dir string
}

// NewLocalStore 创建 LocalStore 并确保目录存在
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "./agents"
	}
	if err := os.MkdirAll(filepath.Join(dir, "templates"), 0o755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir 返回存储根目录
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) agentPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *LocalStore) templatePath(name string) string {
	return filepath.Join(s.dir, "templates", name+".json")
}

// SeedDefaults 幂等写入内置模板文件
func (s *LocalStore) SeedDefaults(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tpl := range DefaultTemplates() {
		path := s.templatePath(tpl.Name)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		record := tpl
		record.ID = uuid.New().String()
		record.Capabilities = NormalizeCapabilities(record.Capabilities)
		if record.Metadata == nil {
			record.Metadata = map[string]any{}
		}

		if err := writeJSONFile(path, &record); err != nil {
			return fmt.Errorf("写入模板文件失败 [%s]: %w", tpl.Name, err)
		}
		logger.Info("已写入内置模板文件", zap.String("name", tpl.Name), zap.String("path", path))
	}
	return nil
}

// CreateAgent 创建 Agent 并落盘
// 复用工厂的校验规则与代码生成，落盘前写入完整记录
func (s *LocalStore) CreateAgent(ctx context.Context, input *CreateAgentInput) (*AgentDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := validateBasics(input)
	if input.Name != "" && agentNameRe.MatchString(input.Name) {
		if _, err := os.Stat(s.agentPath(input.Name)); err == nil {
			errs = append(errs, fmt.Sprintf("Agent with name '%s' already exists", input.Name))
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	now := time.Now().UTC()
	record := &AgentDefinition{
		ID:            uuid.New().String(),
		Name:          input.Name,
		Role:          input.Role,
		SystemMessage: input.SystemMessage,
		Capabilities:  NormalizeCapabilities(input.Capabilities),
		Model:         defaultIfEmpty(input.Model, DefaultModel),
		Provider:      defaultIfEmpty(input.Provider, DefaultProvider),
		Status:        StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
		Metadata:      input.Metadata,
	}
	if record.Metadata == nil {
		record.Metadata = map[string]any{}
	}
	if record.Capabilities == nil {
		record.Capabilities = []string{}
	}

	code := GenerateCode(record)
	record.GeneratedCode = &code

	if err := writeJSONFile(s.agentPath(record.Name), record); err != nil {
		return nil, fmt.Errorf("写入 Agent 文件失败: %w", err)
	}
	return record, nil
}

// GetByName 按名称读取 Agent
// 名称即文件名，先过合法名校验再拼路径，拦截路径穿越
func (s *LocalStore) GetByName(ctx context.Context, name string) (*AgentDefinition, error) {
	if !agentNameRe.MatchString(name) {
		return nil, ErrAgentNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAgent(s.agentPath(name))
}

// Get 按 ID 查询 Agent
// 文件以名称索引，按 ID 查询需要线性扫描
func (s *LocalStore) Get(ctx context.Context, id string) (*AgentDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAllAgents()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrAgentNotFound
}

// List 分页查询 Agent 列表，排序与数据库存储一致
func (s *LocalStore) List(ctx context.Context, skip, limit int) ([]*AgentDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}

	records, err := s.readAllAgents()
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})

	if skip >= len(records) {
		return []*AgentDefinition{}, nil
	}
	end := skip + limit
	if end > len(records) {
		end = len(records)
	}
	return records[skip:end], nil
}

// Delete 按 ID 删除 Agent 文件
func (s *LocalStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAllAgents()
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.ID == id {
			if err := os.Remove(s.agentPath(r.Name)); err != nil {
				return false, fmt.Errorf("删除 Agent 文件失败: %w", err)
			}
			return true, nil
		}
	}
	return false, nil
}

// ListTemplates 查询全部模板，内置在前、名称字母序
func (s *LocalStore) ListTemplates(ctx context.Context) ([]*AgentTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "templates"))
	if err != nil {
		return nil, fmt.Errorf("读取模板目录失败: %w", err)
	}

	var templates []*AgentTemplate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var tpl AgentTemplate
		if err := readJSONFile(filepath.Join(s.dir, "templates", entry.Name()), &tpl); err != nil {
			logger.Warn("跳过损坏的模板文件", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		templates = append(templates, &tpl)
	}

	sort.Slice(templates, func(i, j int) bool {
		if templates[i].IsDefault != templates[j].IsDefault {
			return templates[i].IsDefault
		}
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}

// GetTemplate 按名称读取模板
// 与 GetByName 相同的名称约束，模板名同样充当文件名
func (s *LocalStore) GetTemplate(ctx context.Context, name string) (*AgentTemplate, error) {
	if !agentNameRe.MatchString(name) {
		return nil, ErrTemplateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var tpl AgentTemplate
	if err := readJSONFile(s.templatePath(name), &tpl); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("读取模板文件失败: %w", err)
	}
	return &tpl, nil
}

// CreateFromTemplate 基于模板创建 Agent，定制项语义与工厂一致
func (s *LocalStore) CreateFromTemplate(ctx context.Context, templateName, agentName string, custom *TemplateCustomizations) (*AgentDefinition, error) {
	template, err := s.GetTemplate(ctx, templateName)
	if err != nil {
		return nil, err
	}

	input := &CreateAgentInput{
		Name:          agentName,
		Role:          template.Role,
		SystemMessage: template.SystemMessage,
		Capabilities:  append([]string(nil), template.Capabilities...),
		Model:         DefaultModel,
		Provider:      DefaultProvider,
		Metadata: map[string]any{
			"created_from_template": template.Name,
			"template_id":           template.ID,
		},
	}
	if custom != nil {
		if custom.SystemMessage != nil {
			input.SystemMessage = *custom.SystemMessage
		}
		if custom.Role != nil {
			input.Role = *custom.Role
		}
		if len(custom.Capabilities) > 0 {
			input.Capabilities = append(input.Capabilities, custom.Capabilities...)
		}
		for k, v := range custom.Metadata {
			input.Metadata[k] = v
		}
	}

	return s.CreateAgent(ctx, input)
}

func (s *LocalStore) readAgent(path string) (*AgentDefinition, error) {
	var record AgentDefinition
	if err := readJSONFile(path, &record); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("读取 Agent 文件失败: %w", err)
	}
	return &record, nil
}

func (s *LocalStore) readAllAgents() ([]*AgentDefinition, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("读取存储目录失败: %w", err)
	}

	var records []*AgentDefinition
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		record, err := s.readAgent(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			logger.Warn("跳过损坏的 Agent 文件", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// writeJSONFile 原子写入：先写临时文件再重命名
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
