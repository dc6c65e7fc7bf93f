package guidance

import (
	"strings"
	"time"

	"github.com/lifesaver/backend/internal/model"
	"github.com/lifesaver/backend/internal/utils"
	"github.com/samber/lo"
)

// serializedEvent 事件日志的报告输入形态
// Elapsed 为相对首个事件的时间偏移，报告 Agent 据此描述相对时序
type serializedEvent struct {
	Seq     int    `json:"seq"`
	Kind    string `json:"kind"`
	Elapsed string `json:"elapsed"`
	Payload string `json:"payload"`
}

// serializeEvents 按原始顺序序列化事件日志（JSON Lines）
// 空日志返回空串，报告生成对空输入同样成立
func serializeEvents(events []model.SessionEvent) string {
	if len(events) == 0 {
		return ""
	}

	start := events[0].CreatedAt
	lines := lo.Map(events, func(e model.SessionEvent, _ int) string {
		return utils.ToJSON(serializedEvent{
			Seq:     e.Seq,
			Kind:    e.Kind,
			Elapsed: e.CreatedAt.Sub(start).Round(time.Second).String(),
			Payload: e.Payload,
		})
	})

	return strings.Join(lines, "\n")
}
