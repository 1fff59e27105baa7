// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const lamportsPerSOL = 1_000_000_000

// Определение ошибок
var (
	ErrAccountNotFound = errors.New("account not found")
)

// IsAccountNotFoundError проверяет, является ли ошибка "not found"
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAccountNotFound) || strings.Contains(strings.ToLower(err.Error()), "not found")
}

// TokenBalance is a non-zero SPL token holding of a wallet.
type TokenBalance struct {
	Mint    string  `json:"mint"`
	Account string  `json:"account"`
	Amount  float64 `json:"amount"`
}

// parsedTokenAccount is the jsonParsed layout of an SPL token account.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount         string   `json:"amount"`
				Decimals       int      `json:"decimals"`
				UIAmount       *float64 `json:"uiAmount"`
				UIAmountString string   `json:"uiAmountString"`
			} `json:"tokenAmount"`
		} `json:"info"`
		Type string `json:"type"`
	} `json:"parsed"`
	Program string `json:"program"`
}

// Client – тонкий адаптер для чтения балансов через solana-go.
type Client struct {
	rpc    *rpc.Client
	logger *zap.Logger
}

// NewClient создаёт новый клиент, принимая RPC URL и логгер через dependency injection.
func NewClient(rpcURL string, logger *zap.Logger) *Client {
	return &Client{
		rpc:    rpc.New(rpcURL),
		logger: logger.Named("solbc-client"),
	}
}

// GetSOLBalance returns the native balance of owner in SOL.
func (c *Client) GetSOLBalance(ctx context.Context, owner solana.PublicKey) (float64, error) {
	result, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		c.logger.Error("GetBalance error",
			zap.String("owner", owner.String()),
			zap.Error(err))
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return float64(result.Value) / lamportsPerSOL, nil
}

// GetTokenBalances returns the SPL token accounts of owner under the Token
// program with a positive UI amount.
func (c *Client) GetTokenBalances(ctx context.Context, owner solana.PublicKey) ([]TokenBalance, error) {
	programID := solana.TokenProgramID
	res, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingJSONParsed,
		})
	if err != nil {
		c.logger.Error("GetTokenAccountsByOwner error",
			zap.String("owner", owner.String()),
			zap.Error(err))
		return nil, fmt.Errorf("get token accounts: %w", err)
	}

	balances := make([]TokenBalance, 0, len(res.Value))
	for _, acc := range res.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}

		var parsed parsedTokenAccount
		if err := json.Unmarshal(acc.Account.Data.GetRawJSON(), &parsed); err != nil {
			c.logger.Debug("Skipping unparsable token account",
				zap.String("account", acc.Pubkey.String()),
				zap.Error(err))
			continue
		}

		info := parsed.Parsed.Info
		if info.TokenAmount.UIAmount == nil || *info.TokenAmount.UIAmount <= 0 {
			continue
		}
		balances = append(balances, TokenBalance{
			Mint:    info.Mint,
			Account: acc.Pubkey.String(),
			Amount:  *info.TokenAmount.UIAmount,
		})
	}

	return balances, nil
}
