package guidance

import (
	"encoding/json"
	"strings"

	"github.com/lifesaver/backend/internal/utils"
	"k8s.io/klog/v2"
)

// TriageResult 分诊 Agent 约定的结构化输出
type TriageResult struct {
	EmergencyType string   `json:"emergency_type"`
	Confidence    float64  `json:"confidence"`
	Summary       string   `json:"summary"`
	RedFlags      []string `json:"red_flags"`
}

// parseTriageOutput 防御式解析分诊输出
// 模型不保证遵守输出约定，任何解析失败都降级为零置信度兜底结果，不向上抛错
func parseTriageOutput(raw string) TriageResult {
	fallback := TriageResult{
		Confidence: 0,
		Summary:    "triage output could not be parsed",
	}

	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	var result TriageResult
	if err := json.Unmarshal([]byte(utils.ExtractJSON(raw)), &result); err != nil {
		klog.Warningf("[guidance] 分诊输出解析失败，使用兜底结果: %v", err)
		return fallback
	}

	result.EmergencyType = strings.TrimSpace(result.EmergencyType)
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result
}
