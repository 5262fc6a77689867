package config

const (
	defaultDataDir        = "~/.local/share/drover"
	defaultLogDir         = "~/.local/share/drover/logs"
	defaultAPIBind        = "127.0.0.1:7511"
	defaultDebugHost      = "127.0.0.1"
	defaultDebugPort      = 9222
	defaultSettingsTitle  = "Settings"
	defaultPayloadPath    = "~/.config/drover/payload.js"
	defaultEvalTimeout    = 10
	defaultInjectTimeout  = 60
	defaultRefreshEvery   = 30
	defaultConnectTimeout = 10

	defaultMode             = ModeQueue
	defaultCompletionPolicy = PolicyConsume
	defaultSilenceTimeout   = 180
	defaultMinDwell         = 30
	defaultStartGrace       = 10
	defaultVerifyPrompt     = "Double-check the previous task: confirm it is fully complete, and finish anything that is missing."
	defaultContinuePrompt   = "Continue."

	defaultActivityPoll      = 5
	defaultLeaseHeartbeat    = 5
	defaultStaleMultiplier   = 3
	defaultScheduleInterval  = 60
	defaultScheduleDailyTime = "09:00"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Debug: Debug{
			Host:           defaultDebugHost,
			Port:           defaultDebugPort,
			SettingsTitle:  defaultSettingsTitle,
			PayloadPath:    defaultPayloadPath,
			EvalTimeout:    defaultEvalTimeout,
			InjectTimeout:  defaultInjectTimeout,
			RefreshEvery:   defaultRefreshEvery,
			ConnectTimeout: defaultConnectTimeout,
		},
		Queue: Queue{
			Mode:             defaultMode,
			CompletionPolicy: defaultCompletionPolicy,
			SilenceTimeout:   defaultSilenceTimeout,
			MinDwell:         defaultMinDwell,
			StartGrace:       defaultStartGrace,
			VerifyPrompt:     defaultVerifyPrompt,
			QuotaResume:      true,
			ContinuePrompt:   defaultContinuePrompt,
		},
		Schedule: Schedule{
			IntervalMinutes: defaultScheduleInterval,
			DailyTime:       defaultScheduleDailyTime,
		},
		Activity: Activity{
			PollInterval: defaultActivityPoll,
		},
		Coordination: Coordination{
			HeartbeatInterval: defaultLeaseHeartbeat,
			StaleMultiplier:   defaultStaleMultiplier,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
