package entity

// GatewayConfig holds merchant credentials and the mode-dependent gateway endpoints.
type GatewayConfig struct {
	MerchantId  string
	MerchantKey string
	// Passphrase is the shared secret appended to the signature string; may be empty in sandbox setups
	Passphrase  string
	Sandbox     bool
	ProcessUrl  string
	ValidateUrl string
}

// Mode names the operating mode for logs.
func (g *GatewayConfig) Mode() string {
	if g.Sandbox {
		return "sandbox"
	}
	return "live"
}

// CallbackURLs are the three URLs the gateway calls back on.
type CallbackURLs struct {
	ReturnUrl string
	CancelUrl string
	NotifyUrl string
}
