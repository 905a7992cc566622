package storage

import (
	"github.com/pure2p/pure2p/internal/perror"
)

// MinRetryIntervalMinutes and MaxRetryIntervalMinutes bound the
// user-configurable periodic retry interval.
const (
	MinRetryIntervalMinutes = 1
	MaxRetryIntervalMinutes = 1440
)

// Default values for the settings fields not exposed to clamping.
const (
	DefaultTokenValidityHours = 24
	DefaultMaxRetries         = 5
	DefaultBaseRetryDelayMs   = 1000
)

// Settings is the single mutable settings row.
type Settings struct {
	RetryIntervalMinutes int
	LogLevel             string
	TokenValidityHours   int
	MaxRetries           int
	BaseRetryDelayMs     int
	NotificationsEnabled bool
}

// LoadSettings returns the settings row, creating it with defaults if
// absent.
func (s *Storage) LoadSettings() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT retry_interval_minutes, log_level, token_validity_hours,
		max_retries, base_retry_delay_ms, notifications_enabled FROM settings WHERE id = 1`)
	var st Settings
	var notifications int
	err := row.Scan(&st.RetryIntervalMinutes, &st.LogLevel, &st.TokenValidityHours,
		&st.MaxRetries, &st.BaseRetryDelayMs, &notifications)
	if err == nil {
		st.NotificationsEnabled = notifications != 0
		return &st, nil
	}

	st = Settings{
		RetryIntervalMinutes: MinRetryIntervalMinutes,
		LogLevel:             "info",
		TokenValidityHours:   DefaultTokenValidityHours,
		MaxRetries:           DefaultMaxRetries,
		BaseRetryDelayMs:     DefaultBaseRetryDelayMs,
		NotificationsEnabled: true,
	}
	_, insertErr := s.db.Exec(`INSERT INTO settings
		(id, retry_interval_minutes, log_level, token_validity_hours, max_retries, base_retry_delay_ms, notifications_enabled)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		st.RetryIntervalMinutes, st.LogLevel, st.TokenValidityHours, st.MaxRetries, st.BaseRetryDelayMs, 1)
	if insertErr != nil {
		return nil, perror.Wrap(perror.Storage, "create default settings", insertErr)
	}
	return &st, nil
}

// UpdateSetting applies a single named setting update. It clamps
// retry_interval_minutes to [MinRetryIntervalMinutes, MaxRetryIntervalMinutes].
func (s *Storage) UpdateSetting(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case "retry_interval_minutes":
		minutes, ok := value.(int)
		if !ok {
			return perror.New(perror.Validation, "retry_interval_minutes must be an int")
		}
		if minutes < MinRetryIntervalMinutes {
			minutes = MinRetryIntervalMinutes
		}
		if minutes > MaxRetryIntervalMinutes {
			minutes = MaxRetryIntervalMinutes
		}
		return s.exec(`UPDATE settings SET retry_interval_minutes = ? WHERE id = 1`, minutes, "update retry_interval_minutes")
	case "log_level":
		level, ok := value.(string)
		if !ok {
			return perror.New(perror.Validation, "log_level must be a string")
		}
		return s.exec(`UPDATE settings SET log_level = ? WHERE id = 1`, level, "update log_level")
	case "token_validity_hours":
		hours, ok := value.(int)
		if !ok || hours < 1 {
			return perror.New(perror.Validation, "token_validity_hours must be a positive int")
		}
		return s.exec(`UPDATE settings SET token_validity_hours = ? WHERE id = 1`, hours, "update token_validity_hours")
	case "max_retries":
		retries, ok := value.(int)
		if !ok || retries < 0 {
			return perror.New(perror.Validation, "max_retries must be a non-negative int")
		}
		return s.exec(`UPDATE settings SET max_retries = ? WHERE id = 1`, retries, "update max_retries")
	case "base_retry_delay_ms":
		delay, ok := value.(int)
		if !ok || delay < 1 {
			return perror.New(perror.Validation, "base_retry_delay_ms must be a positive int")
		}
		return s.exec(`UPDATE settings SET base_retry_delay_ms = ? WHERE id = 1`, delay, "update base_retry_delay_ms")
	case "notifications_enabled":
		enabled, ok := value.(bool)
		if !ok {
			return perror.New(perror.Validation, "notifications_enabled must be a bool")
		}
		flag := 0
		if enabled {
			flag = 1
		}
		return s.exec(`UPDATE settings SET notifications_enabled = ? WHERE id = 1`, flag, "update notifications_enabled")
	default:
		return perror.New(perror.Validation, "unknown setting name")
	}
}

func (s *Storage) exec(query string, arg interface{}, errContext string) error {
	if _, err := s.db.Exec(query, arg); err != nil {
		return perror.Wrap(perror.Storage, errContext, err)
	}
	return nil
}
