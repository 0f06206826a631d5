package aave

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"aaveCustody/internal/model"
)

// TokenMetaCache memoizes FetchTokenMeta results. Metadata is assumed
// immutable, so entries never expire.
type TokenMetaCache struct {
	entries sync.Map // common.Address -> model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{}
}

func (c *TokenMetaCache) Get(token common.Address) (model.TokenMeta, bool) {
	v, ok := c.entries.Load(token)
	if !ok {
		return model.TokenMeta{}, false
	}
	return v.(model.TokenMeta), true
}

func (c *TokenMetaCache) Set(token common.Address, meta model.TokenMeta) {
	c.entries.Store(token, meta)
}

// FetchTokenMeta reads decimals, symbol and name of token. Only decimals is
// required; a token without symbol or name keeps those fields empty.
func (b *Backend) FetchTokenMeta(ctx context.Context, token common.Address, cache *TokenMetaCache) (model.TokenMeta, error) {
	if cache != nil {
		if meta, ok := cache.Get(token); ok {
			return meta, nil
		}
	}

	parsed, err := ERC20ABI()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := b.call(ctx, token, parsed, "decimals")
	if err != nil {
		return model.TokenMeta{}, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return model.TokenMeta{}, fmt.Errorf("decimals: unexpected type %T", values[0])
	}

	meta := model.TokenMeta{Address: token.Hex(), Decimals: decimals}
	t := &Token{backend: b, address: token}
	for field, dst := range map[string]*string{"symbol": &meta.Symbol, "name": &meta.Name} {
		s, err := t.text(ctx, field)
		if err != nil {
			b.logger.Debug("token text unavailable", zap.String("token", token.Hex()), zap.String("field", field), zap.Error(err))
			continue
		}
		*dst = s
	}

	if cache != nil {
		cache.Set(token, meta)
	}
	return meta, nil
}

// FormatUnits renders amount as a decimal with the given number of
// fractional digits, trimming trailing zeros.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}

	digits := new(big.Int).Abs(amount).String()
	if pad := int(decimals) + 1 - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	cut := len(digits) - int(decimals)
	out := digits[:cut]
	if frac := strings.TrimRight(digits[cut:], "0"); frac != "" {
		out += "." + frac
	}
	if amount.Sign() < 0 {
		out = "-" + out
	}
	return out
}

func bytes32ToString(value interface{}) (string, bool) {
	v, ok := value.([32]byte)
	if !ok {
		return "", false
	}
	return string(bytes.TrimRight(v[:], "\x00")), true
}

func asAddress(value interface{}) (common.Address, error) {
	v, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected address type %T", value)
	}
	return v, nil
}

// asBigInt copies a uint256 output so callers cannot alias unpacked values.
func asBigInt(value interface{}) (*big.Int, error) {
	v, ok := value.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected uint256 type %T", value)
	}
	return new(big.Int).Set(v), nil
}
