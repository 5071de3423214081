package schemas

import "time"

// SettingType is the declared value type of a bot_settings row.
type SettingType string

const (
	SettingString  SettingType = "string"
	SettingInteger SettingType = "integer"
	SettingBoolean SettingType = "boolean"
)

// Setting is one key/value row of bot_settings.
type Setting struct {
	Key         string      `json:"setting_key"`
	Value       string      `json:"setting_value"`
	Type        SettingType `json:"setting_type"`
	Description string      `json:"description"`
	Active      bool        `json:"is_active"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
