/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"time"

	"crosschain-lending-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// policyFile mirrors the policy YAML; absent keys keep their default
type policyFile struct {
	InterestRate       *string `yaml:"interest_rate"`
	LendAPY            *string `yaml:"lend_apy"`
	LoanTermMonths     *int    `yaml:"loan_term_months"`
	MinCollateralRatio *string `yaml:"min_collateral_ratio"`
	GracePeriod        *string `yaml:"grace_period"`
	EnforceLiquidity   *bool   `yaml:"enforce_liquidity"`
	RepaymentTolerance *string `yaml:"repayment_tolerance"`
}

// LoadPolicy starts from the default lending policy, applies the YAML file at
// path when one is given, then applies environment overrides.
func LoadPolicy(path string) (models.LendingPolicy, error) {
	policy := models.DefaultLendingPolicy()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return models.LendingPolicy{}, fmt.Errorf("unable to read %s: %w", path, err)
		}
		var file policyFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return models.LendingPolicy{}, fmt.Errorf("unable to parse %s: %w", path, err)
		}
		if err := file.apply(&policy); err != nil {
			return models.LendingPolicy{}, fmt.Errorf("invalid policy in %s: %w", path, err)
		}
	}

	if err := applyPolicyEnv(&policy); err != nil {
		return models.LendingPolicy{}, err
	}
	if err := validatePolicy(policy); err != nil {
		return models.LendingPolicy{}, err
	}
	return policy, nil
}

func (f policyFile) apply(policy *models.LendingPolicy) error {
	decimals := []struct {
		name  string
		value *string
		dst   *decimal.Decimal
	}{
		{"interest_rate", f.InterestRate, &policy.InterestRate},
		{"lend_apy", f.LendAPY, &policy.LendAPY},
		{"min_collateral_ratio", f.MinCollateralRatio, &policy.MinCollateralRatio},
		{"repayment_tolerance", f.RepaymentTolerance, &policy.RepaymentTolerance},
	}
	for _, field := range decimals {
		if field.value == nil {
			continue
		}
		d, err := decimal.NewFromString(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %q is not a decimal", field.name, *field.value)
		}
		*field.dst = d
	}

	if f.LoanTermMonths != nil {
		policy.LoanTermMonths = *f.LoanTermMonths
	}
	if f.EnforceLiquidity != nil {
		policy.EnforceLiquidity = *f.EnforceLiquidity
	}
	if f.GracePeriod != nil {
		grace, err := time.ParseDuration(*f.GracePeriod)
		if err != nil {
			return fmt.Errorf("grace_period: %w", err)
		}
		policy.GracePeriod = grace
	}
	return nil
}

func applyPolicyEnv(policy *models.LendingPolicy) error {
	var err error
	if policy.InterestRate, err = getEnvDecimal("LOAN_INTEREST_RATE", policy.InterestRate); err != nil {
		return err
	}
	if policy.LendAPY, err = getEnvDecimal("LEND_APY", policy.LendAPY); err != nil {
		return err
	}
	if policy.MinCollateralRatio, err = getEnvDecimal("MIN_COLLATERAL_RATIO", policy.MinCollateralRatio); err != nil {
		return err
	}
	if policy.RepaymentTolerance, err = getEnvDecimal("REPAYMENT_TOLERANCE", policy.RepaymentTolerance); err != nil {
		return err
	}
	if policy.GracePeriod, err = getEnvDuration("LIQUIDATION_GRACE_PERIOD", policy.GracePeriod); err != nil {
		return err
	}
	policy.LoanTermMonths = getEnvInt("LOAN_TERM_MONTHS", policy.LoanTermMonths)
	policy.EnforceLiquidity = getEnvBool("ENFORCE_POOL_LIQUIDITY", policy.EnforceLiquidity)
	return nil
}

func validatePolicy(policy models.LendingPolicy) error {
	switch {
	case policy.InterestRate.IsNegative():
		return fmt.Errorf("interest rate must not be negative, got %s", policy.InterestRate)
	case policy.LendAPY.IsNegative():
		return fmt.Errorf("lend APY must not be negative, got %s", policy.LendAPY)
	case policy.LoanTermMonths <= 0:
		return fmt.Errorf("loan term must be at least one month, got %d", policy.LoanTermMonths)
	case !policy.MinCollateralRatio.IsPositive():
		return fmt.Errorf("minimum collateral ratio must be positive, got %s", policy.MinCollateralRatio)
	case policy.GracePeriod < 0:
		return fmt.Errorf("grace period must not be negative, got %s", policy.GracePeriod)
	case policy.RepaymentTolerance.IsNegative() || policy.RepaymentTolerance.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("repayment tolerance must be in [0, 1), got %s", policy.RepaymentTolerance)
	}
	return nil
}
