package config

const (
	defaultMediaDir   = "~/.local/share/montage/media"
	defaultInboxDir   = "~/.local/share/montage/inbox"
	defaultLogDir     = "~/.local/share/montage/logs"
	defaultAPIBind    = "127.0.0.1:7814"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"
	defaultNtfyWait   = 10
	defaultProviderTO = 30

	defaultVideoIntelBaseURL = "https://videointelligence.googleapis.com"
	defaultSpeechBaseURL     = "https://speech.googleapis.com"
	defaultGenVideoBaseURL   = "https://generativelanguage.googleapis.com"
	defaultVFXBaseURL        = "https://api.replicate.com"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaDir: defaultMediaDir,
			InboxDir: defaultInboxDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Providers: Providers{
			VideoIntel: Provider{
				BaseURL:        defaultVideoIntelBaseURL,
				TimeoutSeconds: defaultProviderTO,
			},
			Speech: Provider{
				BaseURL:        defaultSpeechBaseURL,
				TimeoutSeconds: defaultProviderTO,
			},
			GenVideo: Provider{
				BaseURL:        defaultGenVideoBaseURL,
				TimeoutSeconds: defaultProviderTO,
			},
			VFX: Provider{
				BaseURL:        defaultVFXBaseURL,
				TimeoutSeconds: defaultProviderTO,
			},
		},
		Pipeline: Pipeline{
			AutoTranscription: false,
			InboxEnabled:      true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyWait,
			Jobs:           true,
			Steps:          false,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
