package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

const systemPromptGeneral = "You are an AI assistant for Adaptive Escrow Pro, a blockchain-based escrow platform. Analyze user performance data and suggest contract optimizations. Be specific and actionable."

const systemPromptEscrow = "You are an AI assistant for Adaptive Escrow Pro. Analyze this specific escrow and suggest optimizations based on the freelancer's performance history."

// SuggestForUser анализирует профиль и историю пользователя и возвращает
// черновики предложений. Ошибка означает недоступность провайдера либо
// непригодный для разбора ответ; вызывающая сторона переходит на
// rule-based fallback.
func (c *Client) SuggestForUser(ctx context.Context, user *models.User, metrics models.PerformanceMetrics, recentEscrows []*models.Escrow, specific *models.Escrow) ([]models.SuggestionDraft, error) {
	prompt := buildAnalysisPrompt(user, metrics, recentEscrows, specific)

	response, err := c.chatCompletion(ctx, []map[string]string{
		{"role": "system", "content": systemPromptGeneral},
		{"role": "user", "content": prompt},
	}, 1000, 0.7)
	if err != nil {
		return nil, err
	}

	drafts, err := parseSuggestionDrafts(response)
	if err != nil {
		return nil, err
	}

	return drafts, nil
}

// SuggestForEscrow анализирует одну сделку и возвращает черновик
// предложения для неё.
func (c *Client) SuggestForEscrow(ctx context.Context, escrow *models.Escrow, metrics models.PerformanceMetrics) (*models.SuggestionDraft, error) {
	prompt := buildEscrowAnalysisPrompt(escrow, metrics)

	response, err := c.chatCompletion(ctx, []map[string]string{
		{"role": "system", "content": systemPromptEscrow},
		{"role": "user", "content": prompt},
	}, 800, 0.7)
	if err != nil {
		return nil, err
	}

	drafts, err := parseSuggestionDrafts(response)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("ai: ответ без предложений")
	}

	return &drafts[0], nil
}

// buildAnalysisPrompt формирует промпт по профилю и недавним сделкам.
func buildAnalysisPrompt(user *models.User, metrics models.PerformanceMetrics, recentEscrows []*models.Escrow, specific *models.Escrow) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Analyze this freelancer's performance and suggest contract optimizations:

User Profile:
- Name: %s
- Role: %s
- Rating: %.2f/5
- Total Jobs: %d
- Late Jobs: %d
- On-time Percentage: %.2f%%
- Reliability Score: %.2f/5

Recent Performance:
`, user.Name, user.Role, user.Rating, metrics.TotalJobs, metrics.LateJobs, metrics.OnTimePercentage, metrics.ReliabilityScore)

	for _, escrow := range recentEscrows {
		fmt.Fprintf(&b, "- Job: %d XLM, Status: %s, Deadline: %s\n", escrow.Amount, escrow.Status, escrow.Deadline.Format(time.RFC3339))
	}

	if specific != nil {
		fmt.Fprintf(&b, `
Current Escrow:
- Amount: %d XLM
- Deadline: %s
- Current Penalty Rate: %.2f%%
- Grace Period: %d hours
`, specific.Amount, specific.Deadline.Format(time.RFC3339), float64(specific.PenaltyRate)/100, specific.GracePeriod)
	}

	b.WriteString(`
Based on this data, suggest specific optimizations for:
1. Penalty rates (suggest 0-10%)
2. Grace periods (suggest 0-168h)
3. Deadlines (if applicable)

Provide reasoning for each suggestion and confidence level (0-1).
Format as JSON with type, reasoning, suggested_penalty_rate, suggested_grace_period, confidence.`)

	return b.String()
}

// buildEscrowAnalysisPrompt формирует промпт по одной сделке.
func buildEscrowAnalysisPrompt(escrow *models.Escrow, metrics models.PerformanceMetrics) string {
	return fmt.Sprintf(`Analyze this specific escrow and suggest optimizations:

Escrow Details:
- Amount: %d XLM
- Deadline: %s
- Current Penalty Rate: %.2f%%
- Grace Period: %d hours
- Status: %s

Freelancer Performance:
- Total Jobs: %d
- Late Jobs: %d
- On-time Percentage: %.2f%%
- Reliability Score: %.2f/5

Based on the freelancer's history, suggest specific changes to this escrow.
Consider the job size, deadline urgency, and freelancer's track record.
Provide reasoning and confidence level.
Format as JSON with type, reasoning, suggested_penalty_rate, suggested_deadline, suggested_grace_period, confidence.`,
		escrow.Amount, escrow.Deadline.Format(time.RFC3339), float64(escrow.PenaltyRate)/100, escrow.GracePeriod, escrow.Status,
		metrics.TotalJobs, metrics.LateJobs, metrics.OnTimePercentage, metrics.ReliabilityScore)
}

// rawSuggestion промежуточная форма предложения из ответа модели.
type rawSuggestion struct {
	Type                 string   `json:"type"`
	Reasoning            string   `json:"reasoning"`
	SuggestedPenaltyRate *int     `json:"suggested_penalty_rate"`
	SuggestedDeadline    *string  `json:"suggested_deadline"`
	SuggestedGracePeriod *int     `json:"suggested_grace_period"`
	Confidence           *float64 `json:"confidence"`
}

var codeBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseSuggestionDrafts извлекает предложения из текста ответа: сперва
// markdown-блок, затем JSON массив, затем одиночный объект. Непригодный
// ответ является ошибкой, равносильной недоступности провайдера.
func parseSuggestionDrafts(text string) ([]models.SuggestionDraft, error) {
	payload := text
	if match := codeBlockRe.FindStringSubmatch(text); len(match) > 1 {
		payload = match[1]
	}

	var raws []rawSuggestion

	if start, end := strings.Index(payload, "["), strings.LastIndex(payload, "]"); start != -1 && end > start {
		if err := json.Unmarshal([]byte(payload[start:end+1]), &raws); err != nil {
			raws = nil
		}
	}
	if raws == nil {
		start, end := strings.Index(payload, "{"), strings.LastIndex(payload, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("ai: в ответе нет JSON")
		}
		var raw rawSuggestion
		if err := json.Unmarshal([]byte(payload[start:end+1]), &raw); err != nil {
			return nil, fmt.Errorf("ai: разбор ответа: %w", err)
		}
		raws = []rawSuggestion{raw}
	}

	drafts := make([]models.SuggestionDraft, 0, len(raws))
	for _, raw := range raws {
		draft, err := draftFromRaw(raw)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}

	return drafts, nil
}

// draftFromRaw превращает сырое предложение в черновик, проходя через
// конструкторы и Validate.
func draftFromRaw(raw rawSuggestion) (models.SuggestionDraft, error) {
	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = "AI analysis of performance data"
	}
	confidence := 0.7
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}

	suggestionType := raw.Type
	if suggestionType == "" {
		suggestionType = models.SuggestionTypeContractOptimization
	}

	var draft models.SuggestionDraft
	switch suggestionType {
	case models.SuggestionTypePenaltyAdjustment:
		if raw.SuggestedPenaltyRate == nil {
			return draft, fmt.Errorf("ai: предложение %s без ставки", suggestionType)
		}
		draft = models.NewPenaltyAdjustmentDraft(*raw.SuggestedPenaltyRate, reasoning, confidence)
	case models.SuggestionTypeDeadlineExtension:
		if raw.SuggestedDeadline == nil {
			return draft, fmt.Errorf("ai: предложение %s без дедлайна", suggestionType)
		}
		deadline, err := time.Parse(time.RFC3339, *raw.SuggestedDeadline)
		if err != nil {
			return draft, fmt.Errorf("ai: разбор дедлайна: %w", err)
		}
		draft = models.NewDeadlineExtensionDraft(deadline, reasoning, confidence)
	case models.SuggestionTypeGracePeriodChange:
		if raw.SuggestedGracePeriod == nil {
			return draft, fmt.Errorf("ai: предложение %s без льготного периода", suggestionType)
		}
		draft = models.NewGracePeriodChangeDraft(*raw.SuggestedGracePeriod, reasoning, confidence)
	default:
		draft = models.NewContractOptimizationDraft(reasoning, confidence)
		draft.SuggestedPenaltyRate = raw.SuggestedPenaltyRate
		draft.SuggestedGracePeriod = raw.SuggestedGracePeriod
	}

	if err := draft.Validate(); err != nil {
		return draft, fmt.Errorf("ai: %w", err)
	}

	return draft, nil
}
