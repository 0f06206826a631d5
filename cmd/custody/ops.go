package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aaveCustody/internal/aave"
	"aaveCustody/internal/config"
)

// withApp runs fn with a signal-aware context and a wired app.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func runSupply(cmd *cobra.Command, args []string) error {
	token, err := config.ParseAddress(args[0])
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount(args[1])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.module.SupplyLiquidity(ctx, a.caller, token, amount); err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]string{
			"token":  token.Hex(),
			"amount": amount.String(),
		})
	})
}

func runWithdrawLiquidity(cmd *cobra.Command, args []string) error {
	token, err := config.ParseAddress(args[0])
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount(args[1])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		withdrawn, err := a.module.WithdrawLiquidity(ctx, a.caller, token, amount)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]string{
			"token":     token.Hex(),
			"requested": amount.String(),
			"withdrawn": withdrawn.String(),
		})
	})
}

func runAccountData(cmd *cobra.Command, args []string) error {
	persist, _ := cmd.Flags().GetBool("persist")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		user := a.module.Address()
		if len(args) == 1 {
			var err error
			if user, err = config.ParseAddress(args[0]); err != nil {
				return err
			}
		}

		data, err := a.module.GetUserAccountData(ctx, user)
		if err != nil {
			return err
		}
		if persist {
			if a.store == nil {
				return fmt.Errorf("--persist requires pg-dsn")
			}
			if err := a.store.InsertAccountSnapshot(ctx, user.Hex(), time.Now().UTC(), data); err != nil {
				return err
			}
			a.logger.Info("account snapshot stored", zap.String("user", user.Hex()), zap.String("pg_dsn", redactDSN(a.cfg.PGDSN)))
		}
		return writeResult(cmd.OutOrStdout(), data.View(user.Hex()))
	})
}

func runApproveLink(cmd *cobra.Command, args []string) error {
	spender, err := config.ParseAddress(args[0])
	if err != nil {
		return err
	}
	amount, err := config.ParseAmount(args[1])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		ok, err := a.module.ApproveLink(ctx, a.caller, amount, spender)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]interface{}{
			"spender":  spender.Hex(),
			"amount":   amount.String(),
			"approved": ok,
		})
	})
}

func runAllowanceLink(cmd *cobra.Command, args []string) error {
	spender, err := config.ParseAddress(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		allowance, err := a.module.AllowanceLink(ctx, spender)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]string{
			"spender":   spender.Hex(),
			"allowance": allowance.String(),
		})
	})
}

func runBalance(cmd *cobra.Command, args []string) error {
	token, err := config.ParseAddress(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		balance, err := a.module.GetBalance(ctx, token)
		if err != nil {
			return err
		}
		out := map[string]string{
			"token":   token.Hex(),
			"holder":  a.module.Address().Hex(),
			"balance": balance.String(),
		}
		meta, err := a.backend.FetchTokenMeta(ctx, token, a.tokens)
		if err != nil {
			a.logger.Warn("token metadata unavailable", zap.String("token", token.Hex()), zap.Error(err))
		} else {
			out["symbol"] = meta.Symbol
			out["formatted"] = aave.FormatUnits(balance, meta.Decimals)
		}
		return writeResult(cmd.OutOrStdout(), out)
	})
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	token, err := config.ParseAddress(args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.module.Withdraw(ctx, a.caller, token); err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]string{
			"token": token.Hex(),
			"to":    a.module.Owner().Hex(),
		})
	})
}

func writeResult(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
