package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	CustodianLedger = "ledger"
	CustodianMemory = "memory"

	RandomnessPubSub = "pubsub"
	RandomnessLocal  = "local"

	EventsPubSub = "pubsub"
	EventsLocal  = "local"
)

type Config struct {
	Port            string
	DbUrl           string
	GoogleProjectId string

	TimeoutDuration  time.Duration
	FeeBps           uint64
	TreasuryAccount  string
	RandomnessSla    time.Duration
	CustodianTimeout time.Duration
	SupportedTokens  []string

	CustodianMode  string
	RandomnessMode string
	EventsMode     string
	AuthDisabled   bool

	LocalAutoFulfillDelay time.Duration
}

func Setup() {
	viper.AutomaticEnv()
	viper.SetConfigFile("./.env")
	_ = viper.ReadInConfig()

	viper.SetDefault("PORT", ":8080")
	viper.SetDefault("TIMEOUT_DURATION", "30s")
	viper.SetDefault("FEE_BPS", 500)
	viper.SetDefault("TREASURY_ACCOUNT", "0x0000000000000001")
	viper.SetDefault("RANDOMNESS_SLA", "10m")
	viper.SetDefault("CUSTODIAN_TIMEOUT", "10s")
	viper.SetDefault("CUSTODIAN_MODE", CustodianLedger)
	viper.SetDefault("RANDOMNESS_MODE", RandomnessPubSub)
	viper.SetDefault("EVENTS_MODE", EventsPubSub)
	viper.SetDefault("AUTH_DISABLED", false)
	viper.SetDefault("LOCAL_AUTO_FULFILL_DELAY", "2s")
}

func Load() Config {
	return Config{
		Port:                  viper.GetString("PORT"),
		DbUrl:                 viper.GetString("DB_URL"),
		GoogleProjectId:       viper.GetString("GOOGLE_PROJECT_ID"),
		TimeoutDuration:       viper.GetDuration("TIMEOUT_DURATION"),
		FeeBps:                viper.GetUint64("FEE_BPS"),
		TreasuryAccount:       viper.GetString("TREASURY_ACCOUNT"),
		RandomnessSla:         viper.GetDuration("RANDOMNESS_SLA"),
		CustodianTimeout:      viper.GetDuration("CUSTODIAN_TIMEOUT"),
		SupportedTokens:       splitList(viper.GetString("SUPPORTED_TOKENS")),
		CustodianMode:         viper.GetString("CUSTODIAN_MODE"),
		RandomnessMode:        viper.GetString("RANDOMNESS_MODE"),
		EventsMode:            viper.GetString("EVENTS_MODE"),
		AuthDisabled:          viper.GetBool("AUTH_DISABLED"),
		LocalAutoFulfillDelay: viper.GetDuration("LOCAL_AUTO_FULFILL_DELAY"),
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
