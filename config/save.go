package config

import (
	"errors"
	"sync"

	"github.com/spf13/viper"

	"turbinelens/emissions"
)

var configMutex sync.Mutex

// UpdateEmissionDefaults updates the calculator defaults and saves to file
func (c *Config) UpdateEmissionDefaults(mix emissions.Mix, consumptionMWh, carbonPrice float64) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	c.Emissions.DefaultMix = mix.ToMap()
	c.Emissions.AnnualConsumptionMWh = consumptionMWh
	c.Emissions.CarbonPrice = carbonPrice

	viper.Set("emissions.default_mix", c.Emissions.DefaultMix)
	viper.Set("emissions.annual_consumption_mwh", consumptionMWh)
	viper.Set("emissions.carbon_price", carbonPrice)

	return writeConfig()
}

// UpdateRetention updates the run retention window
func (c *Config) UpdateRetention(days int) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	c.Retention.IngestionDays = days
	viper.Set("retention.ingestion_days", days)

	return writeConfig()
}

// writeConfig creates config.yaml on first save when none was loaded
func writeConfig() error {
	if viper.ConfigFileUsed() != "" {
		return viper.WriteConfig()
	}
	err := viper.SafeWriteConfig()
	var exists viper.ConfigFileAlreadyExistsError
	if errors.As(err, &exists) {
		return viper.WriteConfigAs(string(exists))
	}
	return err
}
