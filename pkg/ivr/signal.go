package ivr

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// Пакет и сигналы advanced audio
const (
	PackageAdvancedAudio = "AU"

	// SignalAsr распознавание речи
	SignalAsr = "asr"
	// SignalEnd остановка активного сигнала
	SignalEnd = "es"

	// EventOperationComplete AU/oc
	EventOperationComplete = "oc"
	// EventOperationFailed AU/of
	EventOperationFailed = "of"
)

// timerUnit единица таймеров в параметрах AU
const timerUnit = 100 * time.Millisecond

// AsrSignalConfig параметры сигнала распознавания
type AsrSignalConfig struct {
	// Driver имя драйвера распознавания на стороне шлюза
	Driver string
	// Language языковой тег, например en-US
	Language string
	// Prompts подсказки, проигрываемые перед распознаванием, по порядку
	Prompts []string
	// EndInputKey DTMF клавиша, завершающая ввод
	EndInputKey string
	// MaxDuration максимальная длительность распознавания
	MaxDuration time.Duration
	// WaitingTime ожидание начала ввода
	WaitingTime time.Duration
	// PostSpeechTime тишина после речи, завершающая ввод
	PostSpeechTime time.Duration
	// Hints подсказки распознавателю (слова, фразы)
	Hints string
}

// AsrSignal неизменяемый сигнал распознавания
type AsrSignal struct {
	driver         string
	language       string
	prompts        []*url.URL
	endInputKey    string
	maxDuration    time.Duration
	waitingTime    time.Duration
	postSpeechTime time.Duration
	hints          string
}

// NewAsrSignal проверяет конфигурацию и создает сигнал
func NewAsrSignal(cfg AsrSignalConfig) (*AsrSignal, error) {
	if err := validateToken("driver", cfg.Driver); err != nil {
		return nil, err
	}
	if err := validateToken("language", cfg.Language); err != nil {
		return nil, err
	}
	if err := validateEndInputKey(cfg.EndInputKey); err != nil {
		return nil, err
	}
	for name, d := range map[string]time.Duration{
		"max duration":     cfg.MaxDuration,
		"waiting time":     cfg.WaitingTime,
		"post speech time": cfg.PostSpeechTime,
	} {
		if d < 0 {
			return nil, fmt.Errorf("%w: negative %s", ErrInvalidSignal, name)
		}
	}

	prompts := make([]*url.URL, 0, len(cfg.Prompts))
	for _, p := range cfg.Prompts {
		if p == "" || strings.ContainsAny(p, " \t,()") {
			return nil, fmt.Errorf("%w: prompt %q", ErrInvalidSignal, p)
		}
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("%w: prompt %q: %v", ErrInvalidSignal, p, err)
		}
		prompts = append(prompts, u)
	}

	return &AsrSignal{
		driver:         cfg.Driver,
		language:       cfg.Language,
		prompts:        prompts,
		endInputKey:    cfg.EndInputKey,
		maxDuration:    cfg.MaxDuration,
		waitingTime:    cfg.WaitingTime,
		postSpeechTime: cfg.PostSpeechTime,
		hints:          cfg.Hints,
	}, nil
}

func validateToken(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidSignal, name)
	}
	for _, r := range v {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || r == '(' || r == ')' || r == '=' {
			return fmt.Errorf("%w: %s %q", ErrInvalidSignal, name, v)
		}
	}
	return nil
}

func validateEndInputKey(k string) error {
	if k == "" {
		return nil
	}
	if len(k) != 1 || !strings.Contains("0123456789*#ABCD", k) {
		return fmt.Errorf("%w: end input key %q", ErrInvalidSignal, k)
	}
	return nil
}

func (s *AsrSignal) Driver() string                { return s.driver }
func (s *AsrSignal) Language() string              { return s.language }
func (s *AsrSignal) EndInputKey() string           { return s.endInputKey }
func (s *AsrSignal) MaxDuration() time.Duration    { return s.maxDuration }
func (s *AsrSignal) WaitingTime() time.Duration    { return s.waitingTime }
func (s *AsrSignal) PostSpeechTime() time.Duration { return s.postSpeechTime }
func (s *AsrSignal) Hints() string                 { return s.hints }

// Prompts возвращает копию списка подсказок
func (s *AsrSignal) Prompts() []*url.URL {
	out := make([]*url.URL, len(s.prompts))
	for i, u := range s.prompts {
		c := *u
		out[i] = &c
	}
	return out
}

// Name имя сигнала в пакете AU
func (s *AsrSignal) Name() string {
	return SignalAsr
}

func (s *AsrSignal) String() string {
	return PackageAdvancedAudio + "/" + SignalAsr + "(" + EncodeAsrSignal(s) + ")"
}
