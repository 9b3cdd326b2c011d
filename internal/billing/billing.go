// Package billing prices forecast consumption with tiered energy rates.
package billing

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/apperr"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/logger"
	"github.com/kanna-karuppasamy/smart-grid-usage-forecaster/internal/models"
)

// Tier charges Rate per kVAh for consumption up to UpTo. A zero UpTo marks the open top tier.
type Tier struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// Rates is a tariff.
type Rates struct {
	Currency    string
	FixedCharge decimal.Decimal
	TaxPercent  decimal.Decimal
	Tiers       []Tier
}

// DefaultRates is used when no rates file is configured.
func DefaultRates() Rates {
	return Rates{
		Currency:    "INR",
		FixedCharge: decimal.NewFromInt(100),
		TaxPercent:  decimal.NewFromInt(5),
		Tiers: []Tier{
			{UpTo: decimal.NewFromInt(100), Rate: decimal.RequireFromString("4.50")},
			{UpTo: decimal.NewFromInt(300), Rate: decimal.RequireFromString("6.00")},
			{Rate: decimal.RequireFromString("8.00")},
		},
	}
}

type ratesFile struct {
	Currency    string `yaml:"currency"`
	FixedCharge string `yaml:"fixed_charge"`
	TaxPercent  string `yaml:"tax_percent"`
	Tiers       []struct {
		UpToKVAh string `yaml:"up_to_kvah"`
		Rate     string `yaml:"rate"`
	} `yaml:"tiers"`
}

// LoadRates reads a YAML tariff from path.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, fmt.Errorf("reading rates file: %w", err)
	}
	return ParseRates(data)
}

// ParseRates decodes a YAML tariff.
func ParseRates(data []byte) (Rates, error) {
	var f ratesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Rates{}, fmt.Errorf("decoding rates: %w", err)
	}

	r := Rates{Currency: f.Currency}
	if r.Currency == "" {
		r.Currency = "INR"
	}
	var err error
	if r.FixedCharge, err = parseAmount(f.FixedCharge, "fixed_charge"); err != nil {
		return Rates{}, err
	}
	if r.TaxPercent, err = parseAmount(f.TaxPercent, "tax_percent"); err != nil {
		return Rates{}, err
	}
	for i, t := range f.Tiers {
		var tier Tier
		if tier.UpTo, err = parseAmount(t.UpToKVAh, fmt.Sprintf("tiers[%d].up_to_kvah", i)); err != nil {
			return Rates{}, err
		}
		if tier.Rate, err = parseAmount(t.Rate, fmt.Sprintf("tiers[%d].rate", i)); err != nil {
			return Rates{}, err
		}
		r.Tiers = append(r.Tiers, tier)
	}
	if err := r.validate(); err != nil {
		return Rates{}, err
	}
	return r, nil
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative, got %s", field, s)
	}
	return d, nil
}

func (r *Rates) validate() error {
	if len(r.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	sort.SliceStable(r.Tiers, func(i, j int) bool {
		a, b := r.Tiers[i].UpTo, r.Tiers[j].UpTo
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.LessThan(b)
	})
	for i, t := range r.Tiers[:len(r.Tiers)-1] {
		if t.UpTo.IsZero() {
			return fmt.Errorf("only the last tier may be open-ended, tier %d is not last", i)
		}
	}
	return nil
}

// Calculator prices forecasts.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator for rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate prices the forecast consumption. Negative hourly forecasts, which occur when the
// model ran on differenced data, count as zero and are reported on the bill.
func (c *Calculator) Estimate(result models.ForecastResult) (*models.Bill, error) {
	if len(result.Points) == 0 {
		return nil, apperr.Newf(apperr.InvalidArgument, "billing", "nothing to bill")
	}

	total := decimal.Zero
	clamped := 0
	for _, pt := range result.Points {
		if pt.Forecast < 0 {
			clamped++
			continue
		}
		total = total.Add(decimal.NewFromFloat(pt.Forecast))
	}
	if clamped > 0 {
		logger.Warn("clamped negative forecast hours to zero for billing", "hours", clamped)
	}

	bill := &models.Bill{
		TotalKVAh:    total.StringFixed(3),
		Hours:        len(result.Points),
		Currency:     c.rates.Currency,
		ClampedHours: clamped,
		InModelSpace: result.Differences > 0,
	}

	energy := decimal.Zero
	lower := decimal.Zero
	for _, tier := range c.rates.Tiers {
		if !total.GreaterThan(lower) {
			break
		}
		band := total.Sub(lower)
		if !tier.UpTo.IsZero() {
			band = decimal.Min(band, tier.UpTo.Sub(lower))
		}
		amount := band.Mul(tier.Rate)
		energy = energy.Add(amount)

		line := models.TierLine{
			KVAh:   band.StringFixed(3),
			Rate:   tier.Rate.StringFixed(2),
			Amount: amount.StringFixed(2),
		}
		if !tier.UpTo.IsZero() {
			line.UpToKVAh = tier.UpTo.String()
		}
		bill.Tiers = append(bill.Tiers, line)

		if tier.UpTo.IsZero() {
			break
		}
		lower = tier.UpTo
	}

	fixed := c.rates.FixedCharge
	tax := energy.Add(fixed).Mul(c.rates.TaxPercent).Div(decimal.NewFromInt(100))
	bill.EnergyCharge = energy.StringFixed(2)
	bill.FixedCharge = fixed.StringFixed(2)
	bill.Tax = tax.StringFixed(2)
	bill.Total = energy.Add(fixed).Add(tax).StringFixed(2)

	return bill, nil
}
