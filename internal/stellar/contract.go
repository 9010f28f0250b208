// Package stellar имитирует интеграцию с Soroban: реальный деплой
// контрактов заменён детерминированной заглушкой поверх id сделки.
package stellar

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var stellarAddressRe = regexp.MustCompile(`^[A-Z0-9]{56}$`)

// Deployment результат симулированного деплоя escrow-контракта.
type Deployment struct {
	ContractID      string `json:"contract_id"`
	TransactionHash string `json:"transaction_hash"`
	Status          string `json:"status"`
	Network         string `json:"network"`
}

// ContractID возвращает детерминированный идентификатор контракта сделки:
// CONTRACT_ плюс uuid без дефисов.
func ContractID(escrowID uuid.UUID) string {
	return "CONTRACT_" + strings.ReplaceAll(escrowID.String(), "-", "")
}

// DeployEscrowContract имитирует деплой контракта в testnet: задержка сети
// и псевдослучайный хеш транзакции.
func DeployEscrowContract(ctx context.Context, escrowID uuid.UUID) (*Deployment, error) {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Deployment{
		ContractID:      ContractID(escrowID),
		TransactionHash: randomTxHash(),
		Status:          "deployed",
		Network:         "testnet",
	}, nil
}

// ValidateAddress проверяет формат Stellar адреса.
func ValidateAddress(address string) bool {
	return stellarAddressRe.MatchString(address)
}

func randomTxHash() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("0x%064x", time.Now().UnixNano())
	}
	return "0x" + hex.EncodeToString(buf)
}
