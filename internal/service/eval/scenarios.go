package eval

import (
	"encoding/json"
	"os"

	"github.com/lifesaver/backend/internal/protocol"
	"k8s.io/klog/v2"
)

// Scenario 单个评测场景
// ExpectedActionsInclude 为报告中必须出现的关键短语（不区分大小写）
type Scenario struct {
	ID                     string   `json:"id"`
	Description            string   `json:"description"`
	FirstMessage           string   `json:"first_message"`
	ExpectedEmergencyType  string   `json:"expected_emergency_type"`
	UserUpdates            []string `json:"user_updates"`
	ExpectedActionsInclude []string `json:"expected_actions_include"`
}

// builtinScenarios 内置场景，每类急救流程各一条
var builtinScenarios = []Scenario{
	{
		ID:                    "cardiac_arrest_basic",
		Description:           "Adult collapsed at home, caller reports no breathing.",
		FirstMessage:          "My dad just collapsed and he's not breathing.",
		ExpectedEmergencyType: protocol.TypeCardiacArrest,
		UserUpdates: []string{
			"I'm on the floor next to him now.",
			"I'm doing chest compressions like you said.",
			"Someone is bringing an AED.",
			"The ambulance just pulled up.",
		},
		ExpectedActionsInclude: []string{"compressions", "911"},
	},
	{
		ID:                    "choking_adult",
		Description:           "Adult choking on food at dinner, cannot speak.",
		FirstMessage:          "My wife is choking on a piece of steak, she can't talk or breathe!",
		ExpectedEmergencyType: protocol.TypeChoking,
		UserUpdates: []string{
			"She can't cough at all.",
			"I'm doing the abdominal thrusts now.",
			"The food came out, she's breathing again.",
		},
		ExpectedActionsInclude: []string{"abdominal thrusts"},
	},
	{
		ID:                    "possible_stroke_fast",
		Description:           "Older neighbor with sudden facial droop and slurred speech.",
		FirstMessage:          "My neighbor's face is drooping on one side and she's slurring her words.",
		ExpectedEmergencyType: protocol.TypePossibleStroke,
		UserUpdates: []string{
			"She can't lift her left arm.",
			"It started about ten minutes ago.",
			"She's sitting down now, I'm staying with her.",
		},
		ExpectedActionsInclude: []string{"FAST"},
	},
	{
		ID:                    "anaphylaxis_epipen",
		Description:           "Teenager with known peanut allergy, swelling and trouble breathing.",
		FirstMessage:          "My son ate something with peanuts, his lips are swelling and he can barely breathe.",
		ExpectedEmergencyType: protocol.TypeAnaphylaxis,
		UserUpdates: []string{
			"We have an epinephrine auto-injector.",
			"I used the epipen on his thigh.",
			"He's breathing a little easier now.",
		},
		ExpectedActionsInclude: []string{"epinephrine"},
	},
	{
		ID:                    "unconscious_breathing",
		Description:           "Person found unconscious but clearly breathing.",
		FirstMessage:          "I found a man passed out in the hallway. He's breathing but won't wake up.",
		ExpectedEmergencyType: protocol.TypeUnconsciousButBreathing,
		UserUpdates: []string{
			"I shouted and tapped his shoulders, no response.",
			"I rolled him onto his side like you said.",
			"He's still breathing steadily.",
		},
		ExpectedActionsInclude: []string{"recovery position"},
	},
}

// BuiltinScenarios 返回内置场景副本
func BuiltinScenarios() []Scenario {
	out := make([]Scenario, len(builtinScenarios))
	copy(out, builtinScenarios)
	return out
}

// LoadScenarios 从 JSON 文件加载场景，文件缺失或解析失败时回退到内置场景
func LoadScenarios(path string) []Scenario {
	if path == "" {
		return BuiltinScenarios()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		klog.V(6).Infof("[eval] 场景文件不可读，使用内置场景: path=%s, err=%v", path, err)
		return BuiltinScenarios()
	}

	var scenarios []Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		klog.Errorf("[eval] 场景文件解析失败，使用内置场景: path=%s, err=%v", path, err)
		return BuiltinScenarios()
	}
	if len(scenarios) == 0 {
		return BuiltinScenarios()
	}
	return scenarios
}
