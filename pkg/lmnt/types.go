package lmnt

import (
	"io"
	"slices"
)

// ================== Common Types ==================

// Format is the output audio format.
type Format string

const (
	FormatAAC  Format = "aac"
	FormatMP3  Format = "mp3"
	FormatRaw  Format = "raw"
	FormatULaw Format = "ulaw"
	FormatWAV  Format = "wav"
	FormatWebM Format = "webm"
)

// Formats lists every supported output format.
var Formats = []Format{FormatAAC, FormatMP3, FormatRaw, FormatULaw, FormatWAV, FormatWebM}

// Streamable reports whether chunks of this format can be played as they
// arrive. aac and wav are encoded only after synthesis completes.
func (f Format) Streamable() bool {
	switch f {
	case FormatMP3, FormatRaw, FormatULaw, FormatWebM:
		return true
	default:
		return false
	}
}

// Valid reports whether f is empty (server default) or a known format.
func (f Format) Valid() bool {
	return f == "" || slices.Contains(Formats, f)
}

// Language is an ISO 639-1 language code, or "auto".
type Language string

const (
	LanguageAuto       Language = "auto"
	LanguageGerman     Language = "de"
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"
	LanguageFrench     Language = "fr"
	LanguageHindi      Language = "hi"
	LanguageIndonesian Language = "id"
	LanguageItalian    Language = "it"
	LanguageJapanese   Language = "ja"
	LanguageKorean     Language = "ko"
	LanguageDutch      Language = "nl"
	LanguagePolish     Language = "pl"
	LanguagePortuguese Language = "pt"
	LanguageRussian    Language = "ru"
	LanguageSwedish    Language = "sv"
	LanguageThai       Language = "th"
	LanguageTurkish    Language = "tr"
	LanguageUkrainian  Language = "uk"
	LanguageVietnamese Language = "vi"
	LanguageChinese    Language = "zh"
)

// SampleRates lists the supported output sample rates in Hz.
var SampleRates = []int{8000, 16000, 24000}

// validSampleRate reports whether rate is zero (server default) or supported.
func validSampleRate(rate int) bool {
	return rate == 0 || slices.Contains(SampleRates, rate)
}

// WordDuration is the timing of one synthesized input element (a word, a
// whitespace run, or punctuation).
type WordDuration struct {
	Text string `json:"text" yaml:"text" msgpack:"text"`

	// Start is the offset from the beginning of the audio, in seconds.
	Start float64 `json:"start" yaml:"start" msgpack:"start"`

	// Duration is the spoken length, in seconds.
	Duration float64 `json:"duration" yaml:"duration" msgpack:"duration"`
}

// ================== Speech Types ==================

// MaxTextLength is the maximum number of characters per synthesis request.
const MaxTextLength = 5000

// GenerateRequest is the request for one-shot synthesis.
type GenerateRequest struct {
	// Text to synthesize. Required, at most MaxTextLength characters.
	Text string `json:"text" yaml:"text"`

	// Voice is the voice id. Required.
	Voice string `json:"voice" yaml:"voice"`

	Format     Format   `json:"format,omitempty" yaml:"format,omitempty"`
	Language   Language `json:"language,omitempty" yaml:"language,omitempty"`
	Model      string   `json:"model,omitempty" yaml:"model,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`

	// Seed selects a take; the service picks one at random when nil.
	Seed *int `json:"seed,omitempty" yaml:"seed,omitempty"`

	Temperature    *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP           *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	Speed          *float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	Conversational *bool    `json:"conversational,omitempty" yaml:"conversational,omitempty"`

	// Length is the target length of the output in seconds.
	Length *float64 `json:"length,omitempty" yaml:"length,omitempty"`

	// ReturnDurations asks GenerateDetailed to include word durations.
	ReturnDurations bool `json:"return_durations,omitempty" yaml:"return_durations,omitempty"`
}

// GenerateDetailedResponse is the response of GenerateDetailed.
type GenerateDetailedResponse struct {
	// Audio is the decoded audio file.
	Audio []byte `json:"-" yaml:"-"`

	// Seed reproduces this take when the same text is synthesized again.
	Seed int `json:"seed" yaml:"seed"`

	Durations []WordDuration `json:"durations,omitempty" yaml:"durations,omitempty"`
}

// ConvertRequest is the request for voice conversion.
type ConvertRequest struct {
	// Audio is the source speech (wav or mp3, at most 1 MB). Required.
	Audio io.Reader `json:"-" yaml:"-"`

	// Filename is sent with the audio part. Defaults to "audio.wav".
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`

	// Voice is the target voice id. Required.
	Voice string `json:"voice" yaml:"voice"`

	Format     Format   `json:"format,omitempty" yaml:"format,omitempty"`
	Language   Language `json:"language,omitempty" yaml:"language,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// ================== Voice Types ==================

// Owner identifies who owns a voice.
type Owner string

const (
	OwnerSystem Owner = "system"
	OwnerMe     Owner = "me"
	OwnerOther  Owner = "other"

	// OwnerAll is only valid as a list filter.
	OwnerAll Owner = "all"
)

// VoiceType is how a voice was created.
type VoiceType string

const (
	VoiceTypeInstant      VoiceType = "instant"
	VoiceTypeProfessional VoiceType = "professional"
)

// Voice describes a voice available to the account.
type Voice struct {
	ID          string    `json:"id" yaml:"id" msgpack:"id"`
	Name        string    `json:"name" yaml:"name" msgpack:"name"`
	Owner       Owner     `json:"owner" yaml:"owner" msgpack:"owner"`
	State       string    `json:"state" yaml:"state" msgpack:"state"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty" msgpack:"description,omitempty"`
	Gender      string    `json:"gender,omitempty" yaml:"gender,omitempty" msgpack:"gender,omitempty"`
	PreviewURL  string    `json:"preview_url,omitempty" yaml:"preview_url,omitempty" msgpack:"preview_url,omitempty"`
	Starred     *bool     `json:"starred,omitempty" yaml:"starred,omitempty" msgpack:"starred,omitempty"`
	Type        VoiceType `json:"type,omitempty" yaml:"type,omitempty" msgpack:"type,omitempty"`
}

// MaxVoiceFiles is the maximum number of audio files per voice.
const MaxVoiceFiles = 20

// ListVoicesOptions filters List.
type ListVoicesOptions struct {
	// Owner is one of OwnerSystem, OwnerMe or OwnerAll. Empty means all.
	Owner Owner

	// Starred restricts the list to starred voices when true.
	Starred bool
}

// VoiceFile is one training sample for CreateVoice.
type VoiceFile struct {
	Filename string
	Reader   io.Reader
}

// CreateVoiceRequest is the request for creating a voice.
type CreateVoiceRequest struct {
	// Name is the display name. Required.
	Name string `json:"name" yaml:"name"`

	// Enhance applies noise reduction to unclean samples.
	Enhance bool `json:"enhance" yaml:"enhance"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Gender      string `json:"gender,omitempty" yaml:"gender,omitempty"`

	// Files are the training samples, 1 to MaxVoiceFiles.
	Files []VoiceFile `json:"-" yaml:"-"`
}

// UpdateVoiceRequest updates voice metadata. Nil fields are left unchanged.
// Voices not owned by the account only accept Starred.
type UpdateVoiceRequest struct {
	Name        *string `json:"name,omitempty" yaml:"name,omitempty"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	Gender      *string `json:"gender,omitempty" yaml:"gender,omitempty"`
	Starred     *bool   `json:"starred,omitempty" yaml:"starred,omitempty"`

	// Unfreeze reactivates a voice that was frozen for inactivity.
	Unfreeze *bool `json:"unfreeze,omitempty" yaml:"unfreeze,omitempty"`
}

// ================== Account Types ==================

// Account is the plan and usage of the authenticated account.
type Account struct {
	Plan  Plan  `json:"plan" yaml:"plan"`
	Usage Usage `json:"usage" yaml:"usage"`
}

// Plan is the subscription plan.
type Plan struct {
	CharacterLimit         int    `json:"character_limit" yaml:"character_limit"`
	CommercialUseAllowed   bool   `json:"commercial_use_allowed" yaml:"commercial_use_allowed"`
	ProfessionalVoiceLimit *int   `json:"professional_voice_limit,omitempty" yaml:"professional_voice_limit,omitempty"`
	InstantVoiceLimit      *int   `json:"instant_voice_limit,omitempty" yaml:"instant_voice_limit,omitempty"`
	Type                   string `json:"type" yaml:"type"`
}

// Usage is the usage in the current billing period.
type Usage struct {
	Characters         int  `json:"characters" yaml:"characters"`
	ProfessionalVoices int  `json:"professional_voices" yaml:"professional_voices"`
	InstantVoices      *int `json:"instant_voices,omitempty" yaml:"instant_voices,omitempty"`
}

// Ptr returns a pointer to v. It is handy for optional request fields.
func Ptr[T any](v T) *T {
	return &v
}
