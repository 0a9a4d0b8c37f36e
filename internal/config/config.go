// Package config reads settings from THERMO_OCR_* environment variables,
// optionally pre-loaded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ironsheep/thermo-ocr/internal/camera"
	"github.com/ironsheep/thermo-ocr/internal/imaging"
	"github.com/ironsheep/thermo-ocr/internal/ocr"
	"github.com/ironsheep/thermo-ocr/internal/preprocess"
	"github.com/ironsheep/thermo-ocr/internal/sink"
)

// Prefix is prepended to every variable name.
const Prefix = "THERMO_OCR_"

// OCR engine names.
const (
	EngineTesseract = "tesseract"
	EngineOllama    = "ollama"
)

type Config struct {
	LogLevel string

	Language  string
	Interval  int // seconds
	Autostart bool

	Sink           string // sink.KindStorage or sink.KindNetwork
	DBPath         string
	NetworkURL     string
	NetworkTimeout time.Duration

	CameraIndex  int
	RTSPURL      string
	RTSPUsername string
	RTSPPassword string
	SnapshotPath string // file frame source; takes precedence over the camera
	Region       imaging.Region

	OCREngine      string
	TessdataPrefix string
	OllamaURL      string
	OllamaModel    string

	HTTPAddr string // empty disables the HTTP API

	Params preprocess.Params
}

// Load reads envFile if it exists (without overriding variables already
// set), then builds the configuration from the environment. An empty
// envFile skips the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	defaults := preprocess.DefaultParams()
	cfg := &Config{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Language:       getEnv("LANGUAGE", ocr.DefaultLanguage),
		Interval:       getEnvAsInt("INTERVAL", 5),
		Autostart:      getEnvAsBool("AUTOSTART", false),
		Sink:           strings.ToLower(getEnv("SINK", sink.KindStorage)),
		DBPath:         getEnv("DB_PATH", "readings.db"),
		NetworkURL:     getEnv("NETWORK_URL", ""),
		NetworkTimeout: time.Duration(getEnvAsInt("NETWORK_TIMEOUT", 10)) * time.Second,
		CameraIndex:    getEnvAsInt("CAMERA_INDEX", camera.DefaultIndex),
		RTSPURL:        getEnv("RTSP_URL", ""),
		RTSPUsername:   getEnv("RTSP_USERNAME", ""),
		RTSPPassword:   getEnv("RTSP_PASSWORD", ""),
		SnapshotPath:   getEnv("SNAPSHOT_PATH", ""),
		Region:         camera.DefaultRegion,
		OCREngine:      strings.ToLower(getEnv("OCR_ENGINE", EngineTesseract)),
		TessdataPrefix: getEnv("TESSDATA_PREFIX", ""),
		OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", ocr.DefaultOllamaModel),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8090"),
		Params: preprocess.Params{
			Contrast:   getEnvAsFloat("CONTRAST", defaults.Contrast),
			Brightness: getEnvAsFloat("BRIGHTNESS", defaults.Brightness),
			Sharpness:  getEnvAsFloat("SHARPNESS", defaults.Sharpness),
			Threshold:  getEnvAsInt("THRESHOLD", defaults.Threshold),
			Blur:       defaults.Blur,
			Dilate:     getEnvAsInt("DILATE", defaults.Dilate),
			Erode:      getEnvAsInt("ERODE", defaults.Erode),
			Gamma:      defaults.Gamma,
			Adaptive:   getEnvAsBool("ADAPTIVE", defaults.Adaptive),
			Invert:     getEnvAsBool("INVERT", defaults.Invert),
			Denoise:    getEnvAsInt("DENOISE", defaults.Denoise),
		}.Clamped(),
	}

	if raw, ok := lookup("HTTP_ADDR"); ok {
		cfg.HTTPAddr = raw // allow an explicit empty value
	}
	if raw := getEnv("REGION", ""); raw != "" {
		r, err := camera.ParseRegion(raw)
		if err != nil {
			return nil, fmt.Errorf("%sREGION: %w", Prefix, err)
		}
		cfg.Region = r
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Sink {
	case sink.KindStorage, sink.KindNetwork:
	default:
		return fmt.Errorf("%sSINK: unknown sink %q (want %q or %q)", Prefix, c.Sink, sink.KindStorage, sink.KindNetwork)
	}
	switch c.OCREngine {
	case EngineTesseract, EngineOllama:
	default:
		return fmt.Errorf("%sOCR_ENGINE: unknown engine %q (want %q or %q)", Prefix, c.OCREngine, EngineTesseract, EngineOllama)
	}
	if c.Interval < 1 || c.Interval > 600 {
		return fmt.Errorf("%sINTERVAL: %d is outside 1-600 seconds", Prefix, c.Interval)
	}
	if c.NetworkTimeout <= 0 {
		return fmt.Errorf("%sNETWORK_TIMEOUT must be positive", Prefix)
	}
	return nil
}

func lookup(key string) (string, bool) {
	return os.LookupEnv(Prefix + key)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(Prefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(Prefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(Prefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(Prefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
