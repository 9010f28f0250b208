package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adaptive-escrow/escrow-backend/internal/models"
)

// Константы валидации
const (
	MinNameLength  = 2
	MaxNameLength  = 100
	MaxBioLength   = 1000
	MaxSkillLength = 50
	MaxSkillsCount = 50
	MaxReasonLength = 2000
)

// walletAddressRe адрес в формате Stellar: 56 символов A-Z / 0-9.
var walletAddressRe = regexp.MustCompile(`^[A-Z0-9]{56}$`)

// emailRe простая проверка формата email.
var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateWalletAddress проверяет формат wallet-адреса.
func ValidateWalletAddress(address string) error {
	if address == "" {
		return fmt.Errorf("wallet адрес обязателен")
	}
	if !walletAddressRe.MatchString(address) {
		return fmt.Errorf("wallet адрес должен состоять из 56 символов A-Z и 0-9")
	}
	return nil
}

// ValidateAmount проверяет сумму сделки.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("сумма должна быть положительной")
	}
	return nil
}

// ValidateDeadline проверяет, что дедлайн строго в будущем.
func ValidateDeadline(deadline, now time.Time) error {
	if !deadline.After(now) {
		return fmt.Errorf("дедлайн должен быть в будущем")
	}
	return nil
}

// ValidateGracePeriod проверяет льготный период в часах.
func ValidateGracePeriod(hours int) error {
	if hours < 0 || hours > models.MaxGracePeriodHours {
		return fmt.Errorf("льготный период должен быть от 0 до %d часов", models.MaxGracePeriodHours)
	}
	return nil
}

// ValidatePenaltyRate проверяет ставку штрафа в базисных пунктах.
func ValidatePenaltyRate(bps int) error {
	if bps < 0 || bps > models.MaxPenaltyRateBps {
		return fmt.Errorf("ставка штрафа должна быть от 0 до %d базисных пунктов", models.MaxPenaltyRateBps)
	}
	return nil
}

// ValidateLength проверяет длину строки в рунах.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("email обязателен")
	}
	if !emailRe.MatchString(email) {
		return fmt.Errorf("неверный формат email")
	}
	return nil
}

// ValidateSkills проверяет список навыков.
func ValidateSkills(skills []string) error {
	if len(skills) > MaxSkillsCount {
		return fmt.Errorf("навыков должно быть не более %d", MaxSkillsCount)
	}
	for _, skill := range skills {
		if err := ValidateLength("навык", skill, 1, MaxSkillLength); err != nil {
			return err
		}
	}
	return nil
}
