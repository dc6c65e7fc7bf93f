package protocol

import (
	"fmt"
)

// Protocol 一种急救流程：有序步骤 + 注意事项 + 终止条件
// 步骤文本自带 "1." 前缀，顺序固定且有语义
type Protocol struct {
	Key           string   `json:"key"`
	Title         string   `json:"title"`
	Steps         []string `json:"steps"`
	Notes         []string `json:"notes"`
	StopCondition string   `json:"stop_condition"`
}

// 支持的急救类型（闭集）
const (
	TypeCardiacArrest           = "cardiac_arrest"
	TypeChoking                 = "choking"
	TypePossibleStroke          = "possible_stroke"
	TypeAnaphylaxis             = "anaphylaxis"
	TypeUnconsciousButBreathing = "unconscious_but_breathing"
)

// DefaultEmergencyType 分诊失败时的保底类型
const DefaultEmergencyType = TypeUnconsciousButBreathing

// UnknownEmergencyError 未识别的急救类型
type UnknownEmergencyError struct {
	EmergencyType string
}

func (e *UnknownEmergencyError) Error() string {
	return fmt.Sprintf("unknown emergency_type: %s", e.EmergencyType)
}

var catalog = map[string]Protocol{
	TypeCardiacArrest: {
		Key:   TypeCardiacArrest,
		Title: "Suspected Cardiac Arrest (Adult)",
		Steps: []string{
			"1. Call emergency services immediately (or ask someone nearby to call).",
			"2. Place the person on a firm, flat surface.",
			"3. Begin chest compressions at a rate of 100–120 per minute.",
			"4. Push hard and fast in the center of the chest allowing full recoil.",
			"5. If an AED is available, have someone bring and apply it following the prompts.",
		},
		Notes: []string{
			"If you are alone, prioritize calling emergency services on speaker while starting compressions.",
			"Do not stop compressions unless you are too exhausted, someone takes over, or a medical professional tells you to stop.",
		},
		StopCondition: "Emergency responders arrive and take over.",
	},
	TypeChoking: {
		Key:   TypeChoking,
		Title: "Severe Choking (Adult)",
		Steps: []string{
			"1. Ask the person if they are choking and if they can speak or cough.",
			"2. If they cannot cough, speak, or breathe, stand behind them.",
			"3. Perform abdominal thrusts (Heimlich maneuver) until the object is expelled.",
			"4. If the person becomes unresponsive, gently lower them to the ground and begin CPR.",
		},
		Notes: []string{
			"If they can cough or speak, encourage them to continue coughing.",
			"Do not perform blind finger sweeps in the mouth.",
		},
		StopCondition: "Object is expelled and breathing improves, or emergency services arrive.",
	},
	TypePossibleStroke: {
		Key:   TypePossibleStroke,
		Title: "Possible Stroke (FAST Assessment)",
		Steps: []string{
			"1. Check FACE: Ask them to smile — is one side drooping?",
			"2. Check ARMS: Ask them to raise both arms — does one drift downward?",
			"3. Check SPEECH: Ask them to repeat a simple phrase — is speech slurred or strange?",
			"4. Time: Note the time symptoms started.",
			"5. Call emergency services immediately and describe all symptoms and onset time.",
		},
		Notes: []string{
			"Do not give them anything to eat or drink.",
			"Remain with them and monitor breathing and responsiveness.",
		},
		StopCondition: "Emergency services arrive and take over.",
	},
	TypeAnaphylaxis: {
		Key:   TypeAnaphylaxis,
		Title: "Suspected Anaphylaxis (Severe Allergic Reaction)",
		Steps: []string{
			"1. Check for signs: swelling of lips/face, difficulty breathing, hives, dizziness.",
			"2. If an epinephrine auto-injector (EpiPen) is available, assist the person to use it.",
			"3. Call emergency services immediately.",
			"4. Have the person lie down and elevate legs if they feel faint, unless this worsens breathing.",
			"5. If symptoms persist and a second auto-injector is available, it may be used per instructions (usually after 5–15 minutes).",
		},
		Notes: []string{
			"Even if symptoms improve after epinephrine, medical evaluation is required.",
			"Do not make the person walk or stand if they feel weak or dizzy.",
		},
		StopCondition: "Emergency services arrive and take over.",
	},
	TypeUnconsciousButBreathing: {
		Key:   TypeUnconsciousButBreathing,
		Title: "Unconscious but Breathing (Recovery Position)",
		Steps: []string{
			"1. Call emergency services and report the situation.",
			"2. Check breathing: look for chest rise, listen near nose/mouth, feel for air.",
			"3. If breathing is normal, place the person in the recovery position on their side.",
			"4. Tilt the head slightly back to keep the airway open.",
			"5. Regularly re-check breathing until help arrives.",
		},
		Notes: []string{
			"If at any point breathing stops or becomes abnormal, begin CPR.",
			"If there is suspected spinal injury, move the person carefully.",
		},
		StopCondition: "Emergency services arrive and take over.",
	},
}

// 固定输出顺序，供分诊指令与接口列表使用
var orderedTypes = []string{
	TypeCardiacArrest,
	TypeChoking,
	TypePossibleStroke,
	TypeAnaphylaxis,
	TypeUnconsciousButBreathing,
}

// Lookup 按急救类型查找流程
// 未识别的类型返回 *UnknownEmergencyError，不做任何兜底替换
func Lookup(emergencyType string) (*Protocol, error) {
	p, ok := catalog[emergencyType]
	if !ok {
		return nil, &UnknownEmergencyError{EmergencyType: emergencyType}
	}
	return &p, nil
}

// Types 返回全部急救类型（确定性顺序）
func Types() []string {
	out := make([]string, len(orderedTypes))
	copy(out, orderedTypes)
	return out
}

// All 返回全部流程（按 Types 顺序）
func All() []Protocol {
	out := make([]Protocol, 0, len(orderedTypes))
	for _, key := range orderedTypes {
		out = append(out, catalog[key])
	}
	return out
}
