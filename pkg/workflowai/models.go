package workflowai

// ModelInfo describes a model the service can run an agent with.
type ModelInfo struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	IconURL              string         `json:"icon_url,omitempty"`
	Modes                []string       `json:"modes,omitempty"`
	IsNotSupportedReason *string        `json:"is_not_supported_reason,omitempty"`
	AverageCostPerRunUSD *float64       `json:"average_cost_per_run_usd,omitempty"`
	IsLatest             bool           `json:"is_latest"`
	Metadata             *ModelMetadata `json:"metadata,omitempty"`
	IsDefault            bool           `json:"is_default"`
	Providers            []string       `json:"providers,omitempty"`
}

// ModelMetadata holds pricing and capability figures of a model.
type ModelMetadata struct {
	ProviderName           string  `json:"provider_name"`
	PricePerInputTokenUSD  float64 `json:"price_per_input_token_usd"`
	PricePerOutputTokenUSD float64 `json:"price_per_output_token_usd"`
	ReleaseDate            string  `json:"release_date"`
	ContextWindowTokens    int     `json:"context_window_tokens"`
	QualityIndex           int     `json:"quality_index"`
}

// Supported reports whether the model can run the agent.
func (m ModelInfo) Supported() bool {
	return m.IsNotSupportedReason == nil
}
