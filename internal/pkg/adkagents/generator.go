package adkagents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"
)

// Generator 文本生成协作方
// 指导服务只依赖这个接口，测试时注入假实现
type Generator interface {
	Generate(ctx context.Context, agentName string, input string) (string, error)
}

// AgentGenerator Runner 驱动的 Generator 实现
type AgentGenerator struct {
	factory *AgentFactory
}

func NewAgentGenerator(factory *AgentFactory) *AgentGenerator {
	return &AgentGenerator{factory: factory}
}

// Generate 以单条用户消息驱动指定 Agent，返回最后一条输出内容
// 模型不可用或执行失败返回错误，空输出的兜底由调用方决定
func (g *AgentGenerator) Generate(ctx context.Context, agentName string, input string) (string, error) {
	agent, err := g.factory.Get(agentName)
	if err != nil {
		return "", err
	}

	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: agent,
	})

	iter := runner.Run(ctx, []adk.Message{
		{
			Role:    schema.User,
			Content: input,
		},
	})

	var lastContent string
	for {
		select {
		case <-ctx.Done():
			klog.Warningf("[AgentGenerator] 上下文被取消: agent=%s, err=%v", agentName, ctx.Err())
			return "", fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		event, ok := iter.Next()
		if !ok {
			break
		}

		if event.Err != nil {
			klog.Errorf("[AgentGenerator] Agent 执行出错: agent=%s, err=%v", agentName, event.Err)
			return "", fmt.Errorf("agent %s failed: %w", agentName, event.Err)
		}

		if event.Output != nil && event.Output.MessageOutput != nil {
			lastContent = event.Output.MessageOutput.Message.Content
		}

		if event.Action != nil && event.Action.Exit {
			break
		}
	}

	klog.V(6).Infof("[AgentGenerator] Agent 执行完成: agent=%s, 内容长度=%d", agentName, len(lastContent))
	return lastContent, nil
}
