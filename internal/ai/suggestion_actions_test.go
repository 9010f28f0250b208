package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

func TestParseSuggestionDrafts_CodeBlock(t *testing.T) {
	text := "Here are my suggestions:\n```json\n[{\"type\": \"penalty_adjustment\", \"reasoning\": \"high late rate\", \"suggested_penalty_rate\": 800, \"confidence\": 0.85}]\n```"

	drafts, err := parseSuggestionDrafts(text)
	if err != nil {
		t.Fatalf("разбор вернул ошибку: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("ожидался один черновик, получили %d", len(drafts))
	}
	draft := drafts[0]
	if draft.Type != models.SuggestionTypePenaltyAdjustment {
		t.Fatalf("неверный тип: %s", draft.Type)
	}
	if draft.SuggestedPenaltyRate == nil || *draft.SuggestedPenaltyRate != 800 {
		t.Fatalf("неверная ставка: %v", draft.SuggestedPenaltyRate)
	}
	if draft.Confidence != 0.85 {
		t.Fatalf("неверная уверенность: %v", draft.Confidence)
	}
}

func TestParseSuggestionDrafts_BareArray(t *testing.T) {
	text := `[
		{"type": "grace_period_change", "reasoning": "low reliability", "suggested_grace_period": 12, "confidence": 0.7},
		{"type": "deadline_extension", "reasoning": "tight schedule", "suggested_deadline": "2026-04-01T00:00:00Z", "confidence": 0.6}
	]`

	drafts, err := parseSuggestionDrafts(text)
	if err != nil {
		t.Fatalf("разбор вернул ошибку: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("ожидалось два черновика, получили %d", len(drafts))
	}
	if drafts[0].SuggestedGracePeriod == nil || *drafts[0].SuggestedGracePeriod != 12 {
		t.Fatalf("неверный льготный период: %v", drafts[0].SuggestedGracePeriod)
	}
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if drafts[1].SuggestedDeadline == nil || !drafts[1].SuggestedDeadline.Equal(want) {
		t.Fatalf("неверный дедлайн: %v", drafts[1].SuggestedDeadline)
	}
}

func TestParseSuggestionDrafts_SingleObjectWithProse(t *testing.T) {
	text := `Based on the data, I recommend the following change: {"type": "penalty_adjustment", "reasoning": "many late jobs", "suggested_penalty_rate": 600} — this should help.`

	drafts, err := parseSuggestionDrafts(text)
	if err != nil {
		t.Fatalf("разбор вернул ошибку: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("ожидался один черновик, получили %d", len(drafts))
	}
	// Confidence не указана — подставляется 0.7.
	if drafts[0].Confidence != 0.7 {
		t.Fatalf("ожидалась уверенность по умолчанию 0.7, получили %v", drafts[0].Confidence)
	}
}

func TestParseSuggestionDrafts_DefaultsType(t *testing.T) {
	text := `{"reasoning": "overall the contract looks balanced"}`

	drafts, err := parseSuggestionDrafts(text)
	if err != nil {
		t.Fatalf("разбор вернул ошибку: %v", err)
	}
	if drafts[0].Type != models.SuggestionTypeContractOptimization {
		t.Fatalf("неизвестный тип должен сводиться к contract_optimization, получили %s", drafts[0].Type)
	}
}

func TestParseSuggestionDrafts_Garbage(t *testing.T) {
	if _, err := parseSuggestionDrafts("I am unable to help with that."); err == nil {
		t.Fatalf("текст без JSON должен быть ошибкой")
	}
	if _, err := parseSuggestionDrafts(`{"type": "penalty_adjustment", "reasoning": "x"}`); err == nil {
		t.Fatalf("penalty_adjustment без ставки должен быть ошибкой")
	}
	if _, err := parseSuggestionDrafts(`{"type": "penalty_adjustment", "reasoning": "x", "suggested_penalty_rate": 99999}`); err == nil {
		t.Fatalf("ставка вне диапазона должна быть ошибкой")
	}
}

func TestSuggestForEscrow_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("неожиданный путь %s", r.URL.Path)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("не удалось прочитать запрос: %v", err)
		}
		if payload["model"] != "gpt-4" {
			t.Fatalf("неожиданная модель %v", payload["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"type": "grace_period_change", "reasoning": "risky freelancer", "suggested_grace_period": 16, "confidence": 0.75}`}},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "gpt-4", 5*time.Second)
	escrow := &models.Escrow{Amount: 10000, Deadline: time.Now().Add(72 * time.Hour), PenaltyRate: 300, GracePeriod: 24, Status: models.EscrowStatusActive}

	draft, err := client.SuggestForEscrow(context.Background(), escrow, models.PerformanceMetrics{TotalJobs: 5, LateJobs: 2, OnTimePercentage: 60, ReliabilityScore: 2.8})
	if err != nil {
		t.Fatalf("suggest вернул ошибку: %v", err)
	}
	if draft.Type != models.SuggestionTypeGracePeriodChange || *draft.SuggestedGracePeriod != 16 {
		t.Fatalf("неверный черновик: %+v", draft)
	}
}

func TestSuggestForEscrow_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	escrow := &models.Escrow{Amount: 10000, Deadline: time.Now().Add(72 * time.Hour)}

	if _, err := client.SuggestForEscrow(context.Background(), escrow, models.PerformanceMetrics{}); err == nil {
		t.Fatalf("ошибка сервера должна превращаться в ошибку провайдера")
	}
}
