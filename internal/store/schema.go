package store

// Table definitions shared by both backends. Only listings and
// bot_operations are written by the bot; bot_settings is written by the
// settings admin command and the seeding step.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		item_id TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		price TEXT,
		location TEXT,
		category TEXT,
		condition TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		is_visible BOOLEAN NOT NULL DEFAULT FALSE,
		is_featured BOOLEAN NOT NULL DEFAULT FALSE,
		views_count INTEGER NOT NULL DEFAULT 0,
		likes_count INTEGER NOT NULL DEFAULT 0,
		shares_count INTEGER NOT NULL DEFAULT 0,
		messages_count INTEGER NOT NULL DEFAULT 0,
		performance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_refreshed TIMESTAMPTZ,
		refresh_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		metadata TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS bot_operations (
		id BIGSERIAL PRIMARY KEY,
		operation_type TEXT NOT NULL,
		operation_subtype TEXT,
		status TEXT NOT NULL,
		items_processed INTEGER NOT NULL DEFAULT 0,
		items_successful INTEGER NOT NULL DEFAULT 0,
		items_failed INTEGER NOT NULL DEFAULT 0,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ,
		duration_seconds INTEGER,
		error_message TEXT,
		stack_trace TEXT,
		browser_session_id TEXT,
		ip_address TEXT,
		user_agent TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		id BIGSERIAL PRIMARY KEY,
		metric_date DATE NOT NULL,
		metric_type TEXT NOT NULL,
		metric_value DOUBLE PRECISION NOT NULL,
		sample_count INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL,
		login_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		logout_time TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		ip_address TEXT,
		user_agent TEXT,
		cookies_data TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS bot_settings (
		id BIGSERIAL PRIMARY KEY,
		setting_key TEXT UNIQUE NOT NULL,
		setting_value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'string',
		description TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS competitor_analysis (
		id BIGSERIAL PRIMARY KEY,
		competitor_id TEXT NOT NULL,
		item_title TEXT,
		item_price TEXT,
		item_condition TEXT,
		location TEXT,
		views_estimate INTEGER,
		days_listed INTEGER,
		price_comparison DOUBLE PRECISION,
		analysis_timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings (updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bot_operations_start_time ON bot_operations (start_time)`,
}

// SQLite keeps timestamps as TEXT in sqliteTimeLayout so that they sort
// lexically and come back from the driver as plain strings.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		price TEXT,
		location TEXT,
		category TEXT,
		condition TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		is_public INTEGER NOT NULL DEFAULT 0,
		is_visible INTEGER NOT NULL DEFAULT 0,
		is_featured INTEGER NOT NULL DEFAULT 0,
		views_count INTEGER NOT NULL DEFAULT 0,
		likes_count INTEGER NOT NULL DEFAULT 0,
		shares_count INTEGER NOT NULL DEFAULT 0,
		messages_count INTEGER NOT NULL DEFAULT 0,
		performance_score REAL NOT NULL DEFAULT 0.0,
		last_refreshed TEXT,
		refresh_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		metadata TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS bot_operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_type TEXT NOT NULL,
		operation_subtype TEXT,
		status TEXT NOT NULL,
		items_processed INTEGER NOT NULL DEFAULT 0,
		items_successful INTEGER NOT NULL DEFAULT 0,
		items_failed INTEGER NOT NULL DEFAULT 0,
		start_time TEXT NOT NULL,
		end_time TEXT,
		duration_seconds INTEGER,
		error_message TEXT,
		stack_trace TEXT,
		browser_session_id TEXT,
		ip_address TEXT,
		user_agent TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		metric_date TEXT NOT NULL,
		metric_type TEXT NOT NULL,
		metric_value REAL NOT NULL,
		sample_count INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT UNIQUE NOT NULL,
		email TEXT NOT NULL,
		login_time TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		logout_time TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		ip_address TEXT,
		user_agent TEXT,
		cookies_data TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS bot_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		setting_key TEXT UNIQUE NOT NULL,
		setting_value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'string',
		description TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS competitor_analysis (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		competitor_id TEXT NOT NULL,
		item_title TEXT,
		item_price TEXT,
		item_condition TEXT,
		location TEXT,
		views_estimate INTEGER,
		days_listed INTEGER,
		price_comparison REAL,
		analysis_timestamp TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings (updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_bot_operations_start_time ON bot_operations (start_time)`,
}
