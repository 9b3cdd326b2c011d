package models

import "time"

// ForecastInput is a forecast request as submitted over HTTP or Kafka, before validation.
type ForecastInput struct {
	RequestID     string `json:"request_id,omitempty" form:"request_id"`
	StartDate     string `json:"start_date" form:"start_date"`
	EndDate       string `json:"end_date" form:"end_date"`
	ForecastHours *int   `json:"forecast_hours,omitempty" form:"forecast_hours"`
}

// ForecastRequest is a validated request to run the forecasting pipeline.
type ForecastRequest struct {
	RequestID string    `json:"request_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Horizon   int       `json:"horizon_hours"`
}

// ADFResult is the outcome of an augmented Dickey-Fuller unit-root test.
type ADFResult struct {
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"p_value"`
	Lags           int                `json:"lags"`
	Observations   int                `json:"observations"`
	CriticalValues map[string]float64 `json:"critical_values"`
}

// ConditionedSeries is an hourly series prepared for model fitting.
type ConditionedSeries struct {
	// Series is what the model is fitted on.
	Series Series
	// Hourly is the undifferenced hourly consumption, needed for real kVAh levels.
	Hourly Series
	// Differences counts first-order differences applied on top of the hourly delta (0 or 1).
	Differences int
	// ADF is nil when the test was skipped for a constant series.
	ADF *ADFResult
}

// Passes returns the total number of differencing passes from the raw readings,
// counting the hourly delta itself.
func (c ConditionedSeries) Passes() int {
	return 1 + c.Differences
}

// ForecastPoint is the forecast for a single future hour.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Forecast  float64   `json:"forecast"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// ForecastResult is the reconstructed model output on real calendar hours.
// Values live in the same space the model was fitted in: when Differences > 0 they are
// changes in hourly consumption, not consumption levels.
type ForecastResult struct {
	Points      []ForecastPoint `json:"points"`
	Differences int             `json:"differences"`
	Confidence  float64         `json:"confidence"`
	Order       [3]int          `json:"order"`
	Seasonal    [4]int          `json:"seasonal_order"`
}

// ModelSummary describes the fitted seasonal model.
type ModelSummary struct {
	AR            []float64 `json:"ar"`
	MA            []float64 `json:"ma"`
	SAR           []float64 `json:"seasonal_ar"`
	SMA           []float64 `json:"seasonal_ma"`
	Sigma2        float64   `json:"sigma2"`
	LogLikelihood float64   `json:"log_likelihood,omitempty"`
	AIC           float64   `json:"aic,omitempty"`
	Observations  int       `json:"observations"`
	Iterations    int       `json:"iterations"`
	Exact         bool      `json:"exact"`
	// SeasonalReduced is set when the history was too short for seasonal AR/MA terms.
	SeasonalReduced bool `json:"seasonal_reduced"`
}

// Bill is the charge estimate for a forecast.
type Bill struct {
	TotalKVAh    string     `json:"total_kvah"`
	Hours        int        `json:"hours"`
	EnergyCharge string     `json:"energy_charge"`
	FixedCharge  string     `json:"fixed_charge"`
	Tax          string     `json:"tax"`
	Total        string     `json:"total"`
	Currency     string     `json:"currency"`
	Tiers        []TierLine `json:"tiers"`
	ClampedHours int        `json:"clamped_hours"`
	InModelSpace bool       `json:"in_model_space"`
}

// TierLine is the charge for the consumption falling into one tier.
type TierLine struct {
	UpToKVAh string `json:"up_to_kvah,omitempty"`
	KVAh     string `json:"kvah"`
	Rate     string `json:"rate"`
	Amount   string `json:"amount"`
}

// ForecastReport is the request-scoped outcome handed to callers and the result store.
type ForecastReport struct {
	RequestID  string          `json:"request_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Request    ForecastRequest `json:"request"`
	Ingest     IngestReport    `json:"ingest"`
	ADF        *ADFResult      `json:"adf,omitempty"`
	Model      *ModelSummary   `json:"model,omitempty"`
	Result     ForecastResult  `json:"result"`
	Actual     []ActualHour    `json:"actual_hourly_kVAh"`
	Forecasted []ForecastHour  `json:"forecasted_kVAh"`
	Bill       *Bill           `json:"bill,omitempty"`
}
