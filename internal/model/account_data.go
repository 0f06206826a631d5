package model

import "math/big"

// AccountData is the Pool's risk snapshot for a user. Values are passed
// through exactly as the Pool reports them.
type AccountData struct {
	TotalCollateralBase         *big.Int
	TotalDebtBase               *big.Int
	AvailableBorrowsBase        *big.Int
	CurrentLiquidationThreshold *big.Int
	LTV                         *big.Int
	HealthFactor                *big.Int
}

// AccountDataView is the JSON form of AccountData with decimal strings.
type AccountDataView struct {
	User                        string `json:"user"`
	TotalCollateralBase         string `json:"total_collateral_base"`
	TotalDebtBase               string `json:"total_debt_base"`
	AvailableBorrowsBase        string `json:"available_borrows_base"`
	CurrentLiquidationThreshold string `json:"current_liquidation_threshold"`
	LTV                         string `json:"ltv"`
	HealthFactor                string `json:"health_factor"`
}

// View renders the snapshot for user as decimal strings.
func (a AccountData) View(user string) AccountDataView {
	return AccountDataView{
		User:                        user,
		TotalCollateralBase:         bigString(a.TotalCollateralBase),
		TotalDebtBase:               bigString(a.TotalDebtBase),
		AvailableBorrowsBase:        bigString(a.AvailableBorrowsBase),
		CurrentLiquidationThreshold: bigString(a.CurrentLiquidationThreshold),
		LTV:                         bigString(a.LTV),
		HealthFactor:                bigString(a.HealthFactor),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
