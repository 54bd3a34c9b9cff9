package bot

import (
	"net/http"
	"time"
)

// Config represents the configuration for the bot
type Config struct {
	Token string
	// Chat that receives review reminders; 0 disables them
	OwnerChatID int64
	// Time allowed for downloading a photo from Telegram
	DownloadTimeout time.Duration
	// Largest photo accepted as an image payload
	MaxPhotoBytes int64
	HTTPClient    *http.Client
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() Config {
	return Config{
		DownloadTimeout: 30 * time.Second,
		MaxPhotoBytes:   5 << 20,
		HTTPClient:      http.DefaultClient,
	}
}
