package eval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lifesaver/backend/internal/service/guidance"
	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"k8s.io/klog/v2"
)

// ScenarioResult 单场景评测结果
type ScenarioResult struct {
	ScenarioID       string   `json:"scenario_id"`
	ExpectedType     string   `json:"expected_type"`
	PredictedType    string   `json:"predicted_type"`
	ClassificationOK bool     `json:"classification_ok"`
	ExpectedPhrases  []string `json:"expected_phrases"`
	MissingPhrases   []string `json:"missing_phrases"`
	StepsCompleted   int      `json:"steps_completed"`
	Done             bool     `json:"done"`
	Report           string   `json:"report"`
	Error            string   `json:"error,omitempty"`
}

// Summary 整体评测汇总
type Summary struct {
	Total                  int              `json:"total"`
	CorrectClassifications int              `json:"correct_classifications"`
	FullyCoveredReports    int              `json:"fully_covered_reports"`
	Results                []ScenarioResult `json:"results"`
}

// Runner 评测执行器
// 每个场景独立会话，场景间通过 ants 协程池并发执行，结果保持场景顺序
type Runner struct {
	svc        *guidance.Service
	maxWorkers int
}

func NewRunner(svc *guidance.Service, maxWorkers int) *Runner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &Runner{svc: svc, maxWorkers: maxWorkers}
}

// Run 执行全部场景并汇总
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Summary, error) {
	pool, err := ants.NewPool(r.maxWorkers)
	if err != nil {
		return nil, fmt.Errorf("创建评测协程池失败: %w", err)
	}
	defer pool.Release()

	results := make([]ScenarioResult, len(scenarios))
	var wg sync.WaitGroup
	for i, scenario := range scenarios {
		wg.Add(1)
		idx, sc := i, scenario
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[idx] = r.runScenario(ctx, sc)
		})
		if submitErr != nil {
			wg.Done()
			results[idx] = ScenarioResult{
				ScenarioID:   sc.ID,
				ExpectedType: sc.ExpectedEmergencyType,
				Error:        submitErr.Error(),
			}
		}
	}
	wg.Wait()

	summary := &Summary{
		Total:   len(results),
		Results: results,
	}
	for _, result := range results {
		if result.ClassificationOK {
			summary.CorrectClassifications++
		}
		if result.Error == "" && len(result.MissingPhrases) == 0 {
			summary.FullyCoveredReports++
		}
	}

	klog.V(6).Infof("[eval] 评测完成: total=%d, classification=%d/%d, covered=%d/%d",
		summary.Total, summary.CorrectClassifications, summary.Total,
		summary.FullyCoveredReports, summary.Total)
	return summary, nil
}

// runScenario 跑通单个场景：建会话、分诊、逐条推进直到完成、生成报告、打分
func (r *Runner) runScenario(ctx context.Context, scenario Scenario) ScenarioResult {
	result := ScenarioResult{
		ScenarioID:      scenario.ID,
		ExpectedType:    scenario.ExpectedEmergencyType,
		PredictedType:   "unknown",
		ExpectedPhrases: scenario.ExpectedActionsInclude,
	}

	session, err := r.svc.StartSession("")
	if err != nil {
		result.Error = err.Error()
		return result
	}

	outcome, err := r.svc.Triage(ctx, session, scenario.FirstMessage)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.PredictedType = outcome.EmergencyType
	result.ClassificationOK = outcome.EmergencyType == scenario.ExpectedEmergencyType

	for _, update := range scenario.UserUpdates {
		advance, err := r.svc.Advance(ctx, session, update)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.StepsCompleted++
		result.Done = advance.Done
		if advance.Done {
			break
		}
	}

	report, err := r.svc.GenerateReport(ctx, session)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Report = report

	reportLower := strings.ToLower(report)
	result.MissingPhrases = lo.Filter(scenario.ExpectedActionsInclude, func(phrase string, _ int) bool {
		return !strings.Contains(reportLower, strings.ToLower(phrase))
	})

	klog.V(6).Infof("[eval] 场景完成: id=%s, predicted=%s, ok=%v, missing=%d",
		scenario.ID, result.PredictedType, result.ClassificationOK, len(result.MissingPhrases))
	return result
}
