package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"windy/internal/sanitize"
)

const (
	DefaultAppName = "windy"
	EnvPrefix      = "WINDY"
)

// Config is the immutable runtime configuration. It is read once at startup
// and handed by value to the components that need it.
type Config struct {
	Assistant     AssistantConfig     `mapstructure:"assistant"`
	Phrases       PhrasesConfig       `mapstructure:"phrases"`
	Audio         AudioConfig         `mapstructure:"audio"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Response      ResponseConfig      `mapstructure:"response"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Player        PlayerConfig        `mapstructure:"player"`
	Runtime       RuntimeConfig       `mapstructure:"runtime"`
}

type AssistantConfig struct {
	Name         string `mapstructure:"name"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Greeting     string `mapstructure:"greeting"`
	Farewell     string `mapstructure:"farewell"`
}

// PhrasesConfig holds plain phrases; each one is compiled into a word-boundary
// matcher, evaluated in list order.
type PhrasesConfig struct {
	Wake     []string `mapstructure:"wake"`
	Sleep    []string `mapstructure:"sleep"`
	Shutdown []string `mapstructure:"shutdown"`
}

type ProfileConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	PhraseTimeLimit     time.Duration `mapstructure:"phrase_time_limit"`
	EnergyThreshold     float64       `mapstructure:"energy_threshold"`
	DynamicEnergy       bool          `mapstructure:"dynamic_energy"`
	PauseThreshold      time.Duration `mapstructure:"pause_threshold"`
	PhraseThreshold     time.Duration `mapstructure:"phrase_threshold"`
	CalibrationDuration time.Duration `mapstructure:"calibration_duration"`
	Fallback            bool          `mapstructure:"fallback"` // run the fallback chain when audio.fallback.enabled
}

type FallbackConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Attempts int           `mapstructure:"attempts"`
	Duration time.Duration `mapstructure:"duration"`
	Commands [][]string    `mapstructure:"commands"` // {path} and {seconds} are substituted
	Manual   bool          `mapstructure:"manual"`
}

type AudioConfig struct {
	SampleRate       int            `mapstructure:"sample_rate"`
	FrameSize        int            `mapstructure:"frame_size"`
	Retries          int            `mapstructure:"retries"`
	DeviceBackoff    time.Duration  `mapstructure:"device_backoff"`
	MinArtifactBytes int64          `mapstructure:"min_artifact_bytes"`
	Wake             ProfileConfig  `mapstructure:"wake"`
	Conversation     ProfileConfig  `mapstructure:"conversation"`
	Fallback         FallbackConfig `mapstructure:"fallback"`
}

type WhisperConfig struct {
	ModelPath string `mapstructure:"model_path"`
	Language  string `mapstructure:"language"`
	Threads   int    `mapstructure:"threads"`
}

type RemoteSTTConfig struct {
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type TranscriptionConfig struct {
	Engines []string        `mapstructure:"engines"` // tried in order
	Whisper WhisperConfig   `mapstructure:"whisper"`
	OpenAI  RemoteSTTConfig `mapstructure:"openai"`
	Groq    RemoteSTTConfig `mapstructure:"groq"`
	Timeout time.Duration   `mapstructure:"timeout"`
}

type ChatBackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type ResponseConfig struct {
	Backend     string            `mapstructure:"backend"`
	Fallback    string            `mapstructure:"fallback"`
	MaxWords    int               `mapstructure:"max_words"`
	HardLimit   int               `mapstructure:"hard_limit"`
	MinLength   int               `mapstructure:"min_length"`
	MaxHistory  int               `mapstructure:"max_history"`
	MaxTokens   int64             `mapstructure:"max_tokens"`
	Temperature float64           `mapstructure:"temperature"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	OpenAI      ChatBackendConfig `mapstructure:"openai"`
	Groq        ChatBackendConfig `mapstructure:"groq"`
	Ollama      ChatBackendConfig `mapstructure:"ollama"`
}

type PiperConfig struct {
	Executable string `mapstructure:"executable"`
	ModelPath  string `mapstructure:"model_path"`
}

type EspeakConfig struct {
	Executable string `mapstructure:"executable"`
	Voice      string `mapstructure:"voice"`
}

type OpenAITTSConfig struct {
	Model string `mapstructure:"model"`
	Voice string `mapstructure:"voice"`
}

type SpeechConfig struct {
	Engine  string          `mapstructure:"engine"`
	Local   string          `mapstructure:"local"`
	Timeout time.Duration   `mapstructure:"timeout"`
	Piper   PiperConfig     `mapstructure:"piper"`
	Espeak  EspeakConfig    `mapstructure:"espeak"`
	OpenAI  OpenAITTSConfig `mapstructure:"openai"`
}

type PlayerConfig struct {
	Duck          bool          `mapstructure:"duck"`
	DuckFactor    float64       `mapstructure:"duck_factor"`
	DuckMinVolume int           `mapstructure:"duck_min_volume"`
	DuckFade      time.Duration `mapstructure:"duck_fade"`
	SelfNames     []string      `mapstructure:"self_names"`
}

type RuntimeConfig struct {
	WorkDir     string        `mapstructure:"work_dir"`
	SocketPath  string        `mapstructure:"socket_path"`
	BusURL      string        `mapstructure:"bus_url"`
	BusReconn   time.Duration `mapstructure:"bus_reconnect"`
	SleepPause  time.Duration `mapstructure:"sleep_pause"`
	ActivePause time.Duration `mapstructure:"active_pause"`
	LoopPause   time.Duration `mapstructure:"loop_pause"`
}

const defaultSystemPrompt = `You are Windy, a friendly voice assistant.
Keep responses natural, conversational, and brief.
No special formatting, symbols, or instructions.
Just be helpful and speak naturally.`

func setDefaults(v *viper.Viper) {
	v.SetDefault("assistant.name", "Windy")
	v.SetDefault("assistant.system_prompt", defaultSystemPrompt)
	v.SetDefault("assistant.greeting", "Hello! How can I help?")
	v.SetDefault("assistant.farewell", "Goodbye!")

	// "wendy" is how whisper tends to hear the name
	v.SetDefault("phrases.wake", []string{
		"hi windy", "hey windy", "hello windy",
		"hi wendy", "hey wendy", "hello wendy",
		"windy", "wendy",
	})
	v.SetDefault("phrases.sleep", []string{
		"bye windy", "goodbye windy", "bye wendy", "goodbye wendy",
		"see you later windy", "sleep windy", "stop windy",
		"go to sleep", "stop listening",
	})
	v.SetDefault("phrases.shutdown", []string{
		"shutdown", "shut down", "turn off", "exit program", "quit",
	})

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.frame_size", 1024)
	v.SetDefault("audio.retries", 3)
	v.SetDefault("audio.device_backoff", time.Second)
	v.SetDefault("audio.min_artifact_bytes", 1000)

	v.SetDefault("audio.wake.timeout", 5*time.Second)
	v.SetDefault("audio.wake.phrase_time_limit", 3*time.Second)
	v.SetDefault("audio.wake.energy_threshold", 800.0)
	v.SetDefault("audio.wake.dynamic_energy", true)
	v.SetDefault("audio.wake.pause_threshold", 800*time.Millisecond)
	v.SetDefault("audio.wake.phrase_threshold", 100*time.Millisecond)
	v.SetDefault("audio.wake.calibration_duration", time.Second)
	v.SetDefault("audio.wake.fallback", false)

	v.SetDefault("audio.conversation.timeout", 10*time.Second)
	v.SetDefault("audio.conversation.phrase_time_limit", 30*time.Second)
	v.SetDefault("audio.conversation.energy_threshold", 1000.0)
	v.SetDefault("audio.conversation.dynamic_energy", true)
	v.SetDefault("audio.conversation.pause_threshold", 1500*time.Millisecond)
	v.SetDefault("audio.conversation.phrase_threshold", 300*time.Millisecond)
	v.SetDefault("audio.conversation.calibration_duration", 2*time.Second)
	v.SetDefault("audio.conversation.fallback", true)

	v.SetDefault("audio.fallback.enabled", true)
	v.SetDefault("audio.fallback.attempts", 1)
	v.SetDefault("audio.fallback.duration", 5*time.Second)
	v.SetDefault("audio.fallback.commands", [][]string{
		{"arecord", "-q", "-d", "{seconds}", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "{path}"},
		{"rec", "-q", "-r", "16000", "-c", "1", "-b", "16", "{path}", "trim", "0", "{seconds}"},
	})
	v.SetDefault("audio.fallback.manual", true)

	v.SetDefault("transcription.engines", []string{"whisper", "openai"})
	v.SetDefault("transcription.whisper.model_path", "models/ggml-base.en.bin")
	v.SetDefault("transcription.whisper.language", "en")
	v.SetDefault("transcription.whisper.threads", 0)
	v.SetDefault("transcription.openai.model", "whisper-1")
	v.SetDefault("transcription.openai.language", "en")
	v.SetDefault("transcription.groq.model", "whisper-large-v3")
	v.SetDefault("transcription.groq.language", "en")
	v.SetDefault("transcription.timeout", 60*time.Second)

	v.SetDefault("response.backend", "ollama")
	v.SetDefault("response.fallback", "ollama")
	v.SetDefault("response.max_words", 30)
	v.SetDefault("response.hard_limit", 35)
	v.SetDefault("response.min_length", 3)
	v.SetDefault("response.max_history", 10)
	v.SetDefault("response.max_tokens", 100)
	v.SetDefault("response.temperature", 0.7)
	v.SetDefault("response.timeout", 60*time.Second)
	v.SetDefault("response.openai.base_url", "https://api.openai.com/v1/")
	v.SetDefault("response.openai.model", "gpt-4o-mini")
	v.SetDefault("response.groq.base_url", "https://api.groq.com/openai/v1/")
	v.SetDefault("response.groq.model", "llama-3.1-8b-instant")
	v.SetDefault("response.ollama.base_url", "http://localhost:11434/v1/")
	v.SetDefault("response.ollama.model", "phi3.5:3.8b-mini-instruct-q3_K_M")

	v.SetDefault("speech.engine", "piper")
	v.SetDefault("speech.local", "espeak")
	v.SetDefault("speech.timeout", 30*time.Second)
	v.SetDefault("speech.piper.executable", "piper")
	v.SetDefault("speech.piper.model_path", "models/piper/en_US-lessac-medium.onnx")
	v.SetDefault("speech.espeak.executable", "espeak-ng")
	v.SetDefault("speech.espeak.voice", "en")
	v.SetDefault("speech.openai.model", "tts-1")
	v.SetDefault("speech.openai.voice", "nova")

	v.SetDefault("player.duck", false)
	v.SetDefault("player.duck_factor", 0.3)
	v.SetDefault("player.duck_min_volume", 10)
	v.SetDefault("player.duck_fade", 300*time.Millisecond)
	v.SetDefault("player.self_names", []string{DefaultAppName})

	v.SetDefault("runtime.work_dir", "/tmp/windy")
	v.SetDefault("runtime.socket_path", "/tmp/windy.sock")
	v.SetDefault("runtime.bus_url", "")
	v.SetDefault("runtime.bus_reconnect", 2*time.Second)
	v.SetDefault("runtime.sleep_pause", time.Second)
	v.SetDefault("runtime.active_pause", time.Second)
	v.SetDefault("runtime.loop_pause", 2*time.Second)
}

// Load reads configuration from a YAML file (explicit path or the usual search
// locations) layered over defaults, with WINDY_* environment overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/" + DefaultAppName)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate rejects combinations the dialogue loop cannot run with.
func (c Config) Validate() error {
	switch {
	case len(c.Phrases.Wake) == 0:
		return errors.New("config: phrases.wake is empty")
	case len(c.Phrases.Sleep) == 0:
		return errors.New("config: phrases.sleep is empty")
	case c.Audio.Retries < 1:
		return fmt.Errorf("config: audio.retries must be >= 1, got %d", c.Audio.Retries)
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("config: audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	case c.Response.MaxWords < 1:
		return fmt.Errorf("config: response.max_words must be >= 1, got %d", c.Response.MaxWords)
	case c.Response.HardLimit < c.Response.MaxWords:
		return fmt.Errorf("config: response.hard_limit (%d) below response.max_words (%d)",
			c.Response.HardLimit, c.Response.MaxWords)
	case c.Response.HardLimit < sanitize.MinHardLimit:
		return fmt.Errorf("config: response.hard_limit must be >= %d, got %d",
			sanitize.MinHardLimit, c.Response.HardLimit)
	case len(c.Transcription.Engines) == 0:
		return errors.New("config: transcription.engines is empty")
	}

	return nil
}
