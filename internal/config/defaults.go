package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shirushi/data/db/shirushi.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "/usr/local/var/shirushi/data/uploads"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/shirushi/data/indices/annotations.bleve"
	}
	if cfg.Upload.MaxFileSize == 0 {
		cfg.Upload.MaxFileSize = 100 * 1024 * 1024 // 100MB
	}
	if cfg.Upload.AllowedTypes == nil {
		cfg.Upload.AllowedTypes = []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"image/png",
			"image/jpeg",
			"image/jpg",
		}
	}
	if cfg.Conversion.Binary == "" {
		cfg.Conversion.Binary = "libreoffice"
	}
	if cfg.Conversion.TimeoutSeconds == 0 {
		cfg.Conversion.TimeoutSeconds = 60
	}
}
