package shared

import "time"

// HTTP Client Configuration
const (
	DefaultHTTPTimeout     = 180 * time.Second
	DefaultPingTimeout     = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Request size ceilings. Not runtime tunable.
const (
	MaxUploadBytes = 50 << 20 // 50 MiB per audio file
	MaxJSONBody    = "2M"
)

// Capability names. Failure responses use "<name>_failed".
const (
	CapabilityTranscription = "transcription"
	CapabilityChat          = "chat"
	CapabilityTTS           = "tts"
)

// Backend defaults
const (
	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultTranscribeModel    = "gpt-4o-transcribe"
	DefaultChatModel          = "gpt-4o-mini"
	DefaultTTSModel           = "gpt-4o-mini-tts"
	DefaultTranscribeLanguage = "pt"
	DefaultChatTemperature    = 0.5

	// The backend rejects some client-declared containers, so uploads are
	// always relabelled with this pair before submission.
	UploadFilename = "audio.m4a"
	UploadMimeType = "audio/m4a"
)

// Synthesis defaults
const (
	DefaultVoice  = "marin"
	DefaultFormat = "mp3"
)

var SupportedFormats = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"opus": true,
}

// Ledger Configuration
const (
	LedgerFlushInterval = 1 * time.Minute
	LedgerMaxBatch      = 500
	LedgerRetryDelay    = 5 * time.Second
	MaxFlushRetries     = 3
)

// Log previews
const (
	ChatPreviewLen = 120
	TTSPreviewLen  = 80
)
