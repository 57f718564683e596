package config

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled" json:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes" json:"interval_minutes"`
}

// RetentionConfig holds data retention settings
type RetentionConfig struct {
	IngestionDays int `mapstructure:"ingestion_days" json:"ingestion_days"` // 0 keeps runs forever
}
