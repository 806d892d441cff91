package config

import "os"

// Config holds all runtime configuration, read once from the
// environment. Every field has a usable default except the webpush
// subscription and S3 backup settings, which disable their features
// when absent.
type Config struct {
	APIBaseURL string
	WSBaseURL  string
	DBPath     string
	LogLevel   string
	LogFormat  string

	Webpush WebpushConfig
	Backup  BackupConfig
}

// WebpushConfig identifies the push subscription that receives alarm
// notifications. All four values are required for webpush delivery;
// otherwise alarms are logged locally.
type WebpushConfig struct {
	Endpoint        string
	P256dhKey       string
	AuthKey         string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// BackupConfig holds S3-compatible storage settings for encrypted
// offsite backups of the account database.
type BackupConfig struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// FromEnv builds a Config from MEDTIDE_* environment variables.
func FromEnv() Config {
	return Config{
		APIBaseURL: getenv("MEDTIDE_API_URL", "http://localhost:8000"),
		WSBaseURL:  getenv("MEDTIDE_WS_URL", "ws://localhost:8000"),
		DBPath:     getenv("MEDTIDE_DB_PATH", "medtide.db"),
		LogLevel:   getenv("MEDTIDE_LOG_LEVEL", "info"),
		LogFormat:  getenv("MEDTIDE_LOG_FORMAT", "text"),
		Webpush: WebpushConfig{
			Endpoint:        os.Getenv("MEDTIDE_PUSH_ENDPOINT"),
			P256dhKey:       os.Getenv("MEDTIDE_PUSH_P256DH"),
			AuthKey:         os.Getenv("MEDTIDE_PUSH_AUTH"),
			VAPIDPublicKey:  os.Getenv("MEDTIDE_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("MEDTIDE_VAPID_PRIVATE_KEY"),
		},
		Backup: BackupConfig{
			Endpoint:  os.Getenv("MEDTIDE_S3_ENDPOINT"),
			Bucket:    os.Getenv("MEDTIDE_S3_BUCKET"),
			Region:    getenv("MEDTIDE_S3_REGION", "auto"),
			AccessKey: os.Getenv("MEDTIDE_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("MEDTIDE_S3_SECRET_KEY"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
