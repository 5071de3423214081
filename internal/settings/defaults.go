package settings

import "github.com/xkilldash9x/listing-refresher/api/schemas"

// Keys recognised in bot_settings.
const (
	AutoRefreshEnabled    = "auto_refresh_enabled"
	RefreshIntervalHours  = "refresh_interval_hours"
	MaxRefreshPerDay      = "max_refresh_per_day"
	AutoLoginEnabled      = "auto_login_enabled"
	HeadlessMode          = "headless_mode"
	ImplicitWaitTime      = "implicit_wait_time"
	PageLoadTimeout       = "page_load_timeout"
	MaxLoginAttempts      = "max_login_attempts"
	ScreenshotOnError     = "screenshot_on_error"
	PerformanceMonitoring = "performance_monitoring"
	CompetitorAnalysis    = "competitor_analysis"
	MarketplaceRegion     = "marketplace_region"
	PriceOptimization     = "price_optimization"
	AutoMessaging         = "auto_messaging"
	DataBackupEnabled     = "data_backup_enabled"
)

// Defaults is seeded into bot_settings on first start and used whenever a
// key is missing. Order is preserved for listing.
var Defaults = []schemas.Setting{
	{Key: AutoRefreshEnabled, Value: "true", Type: schemas.SettingBoolean, Description: "Enable automatic listing refresh"},
	{Key: RefreshIntervalHours, Value: "6", Type: schemas.SettingInteger, Description: "Hours between refreshes"},
	{Key: MaxRefreshPerDay, Value: "4", Type: schemas.SettingInteger, Description: "Maximum refreshes per day"},
	{Key: AutoLoginEnabled, Value: "true", Type: schemas.SettingBoolean, Description: "Enable automatic login"},
	{Key: HeadlessMode, Value: "false", Type: schemas.SettingBoolean, Description: "Run browser in headless mode"},
	{Key: ImplicitWaitTime, Value: "30", Type: schemas.SettingInteger, Description: "Default wait time for elements"},
	{Key: PageLoadTimeout, Value: "60", Type: schemas.SettingInteger, Description: "Page load timeout in seconds"},
	{Key: MaxLoginAttempts, Value: "3", Type: schemas.SettingInteger, Description: "Maximum login attempts"},
	{Key: ScreenshotOnError, Value: "true", Type: schemas.SettingBoolean, Description: "Take screenshot on errors"},
	{Key: PerformanceMonitoring, Value: "true", Type: schemas.SettingBoolean, Description: "Enable performance monitoring"},
	{Key: CompetitorAnalysis, Value: "true", Type: schemas.SettingBoolean, Description: "Enable competitor analysis"},
	{Key: MarketplaceRegion, Value: "US", Type: schemas.SettingString, Description: "Default marketplace region"},
	{Key: PriceOptimization, Value: "true", Type: schemas.SettingBoolean, Description: "Enable price optimization"},
	{Key: AutoMessaging, Value: "false", Type: schemas.SettingBoolean, Description: "Enable auto messaging"},
	{Key: DataBackupEnabled, Value: "true", Type: schemas.SettingBoolean, Description: "Enable automatic data backup"},
}

// Default returns the built-in definition of key.
func Default(key string) (schemas.Setting, bool) {
	for _, s := range Defaults {
		if s.Key == key {
			return s, true
		}
	}
	return schemas.Setting{}, false
}
