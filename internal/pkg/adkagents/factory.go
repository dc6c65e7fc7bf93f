package adkagents

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"k8s.io/klog/v2"
)

// AgentFactory 负责创建各个急救 Agent
// 使用 Eino ADK 原生的 ChatModelAgent，所有 Agent 复用同一个 ChatModel
type AgentFactory struct {
	chatModel model.ToolCallingChatModel

	mutex  sync.Mutex
	agents map[string]adk.Agent
}

// NewAgentFactory 创建 Agent 工厂
func NewAgentFactory(chatModel model.ToolCallingChatModel) *AgentFactory {
	return &AgentFactory{
		chatModel: chatModel,
		agents:    make(map[string]adk.Agent),
	}
}

// Get 按名称获取 Agent，首次获取时创建并缓存
// 急救 Agent 不挂工具，单轮对话即可
func (f *AgentFactory) Get(name string) (adk.Agent, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if agent, ok := f.agents[name]; ok {
		return agent, nil
	}

	role, ok := AgentRoles[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", name)
	}

	agent, err := adk.NewChatModelAgent(context.Background(), &adk.ChatModelAgentConfig{
		Name:          role.Name,
		Description:   role.Description,
		Instruction:   role.Instruction,
		Model:         f.chatModel,
		MaxIterations: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s agent: %w", role.Name, err)
	}

	klog.V(6).Infof("[AgentFactory] 创建 %s Agent 成功", role.Name)
	f.agents[name] = agent
	return agent, nil
}
