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
	"github.com/pelletier/go-toml/v2"
)

// maxCRF is the top of the x264/x265 quality scale.
const maxCRF = 51

// Server contains HTTP settings.
type Server struct {
	Addr            string `toml:"addr"`
	MaxPayloadBytes int64  `toml:"max_payload_bytes"`
}

// Workspace contains scratch storage settings.
type Workspace struct {
	Dir string `toml:"dir"`
}

// Render contains fixed per-job render parameters.
type Render struct {
	TotalFrames     int      `toml:"total_frames"`
	FrameRate       int      `toml:"frame_rate"`
	ViewportWidth   int      `toml:"viewport_width"`
	ViewportHeight  int      `toml:"viewport_height"`
	EntryPoint      string   `toml:"entry_point"`
	CaptureSelector string   `toml:"capture_selector"`
	MaxAttempts     int      `toml:"max_attempts"`
	FrameTimeout    Duration `toml:"frame_timeout"`
	SettleDelay     Duration `toml:"settle_delay"`
	NavigateTimeout Duration `toml:"navigate_timeout"`
	MinFrameBytes   int64    `toml:"min_frame_bytes"`
}

// Queue contains admission settings.
type Queue struct {
	BusyPolicy string   `toml:"busy_policy"`
	MaxDepth   int      `toml:"max_depth"`
	JobTimeout Duration `toml:"job_timeout"`
}

// Content contains rebuild and serving settings.
type Content struct {
	Dir          string   `toml:"dir"`
	EntryFile    string   `toml:"entry_file"`
	BuildCommand string   `toml:"build_command"`
	BuildDir     string   `toml:"build_dir"`
	BuildTimeout Duration `toml:"build_timeout"`
	SurfaceAddr  string   `toml:"surface_addr"`
	SurfaceURL   string   `toml:"surface_url"`
}

// Browser contains Chrome settings.
type Browser struct {
	ExecPath  string `toml:"exec_path"`
	NoSandbox bool   `toml:"no_sandbox"`
}

// Encoder contains ffmpeg settings.
type Encoder struct {
	Binary      string `toml:"binary"`
	Codec       string `toml:"codec"`
	CRF         int    `toml:"crf"`
	PixelFormat string `toml:"pixel_format"`
}

// Logging contains logger settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config holds runtime settings for the server and the CLI.
type Config struct {
	Server    Server    `toml:"server"`
	Workspace Workspace `toml:"workspace"`
	Render    Render    `toml:"render"`
	Queue     Queue     `toml:"queue"`
	Content   Content   `toml:"content"`
	Browser   Browser   `toml:"browser"`
	Encoder   Encoder   `toml:"encoder"`
	Logging   Logging   `toml:"logging"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:    Server{Addr: ":3001", MaxPayloadBytes: 50 << 20},
		Workspace: Workspace{Dir: "./work"},
		Render: Render{
			TotalFrames:     600,
			FrameRate:       30,
			ViewportWidth:   400,
			ViewportHeight:  300,
			EntryPoint:      "setCurrentFrame",
			CaptureSelector: "canvas",
			MaxAttempts:     3,
			FrameTimeout:    Duration{10 * time.Second},
			SettleDelay:     Duration{50 * time.Millisecond},
			NavigateTimeout: Duration{30 * time.Second},
			MinFrameBytes:   64,
		},
		Queue: Queue{
			BusyPolicy: "queue",
			MaxDepth:   8,
			JobTimeout: Duration{30 * time.Minute},
		},
		Content: Content{
			Dir:          ".",
			EntryFile:    "src/App.js",
			BuildCommand: "npm run build",
			BuildDir:     "build",
			BuildTimeout: Duration{5 * time.Minute},
			SurfaceAddr:  "127.0.0.1:3000",
		},
		Browser: Browser{NoSandbox: true},
		Encoder: Encoder{Binary: "ffmpeg", Codec: "libx264", CRF: 18, PixelFormat: "yuv420p"},
		Logging: Logging{Level: "info", Format: "console"},
	}
}

// Load reads defaults, the optional TOML file at path, a .env file and the
// environment, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("FRAMECAST_CONFIG"))
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	c.Server.MaxPayloadBytes = int64(getEnvInt("MAX_PAYLOAD_BYTES", int(c.Server.MaxPayloadBytes)))
	c.Workspace.Dir = getEnv("WORK_DIR", c.Workspace.Dir)

	c.Render.TotalFrames = getEnvInt("TOTAL_FRAMES", c.Render.TotalFrames)
	c.Render.FrameRate = getEnvInt("FRAME_RATE", c.Render.FrameRate)
	c.Render.ViewportWidth = getEnvInt("VIEWPORT_WIDTH", c.Render.ViewportWidth)
	c.Render.ViewportHeight = getEnvInt("VIEWPORT_HEIGHT", c.Render.ViewportHeight)
	c.Render.EntryPoint = getEnv("FRAME_ENTRY_POINT", c.Render.EntryPoint)
	c.Render.CaptureSelector = getEnvRaw("CAPTURE_SELECTOR", c.Render.CaptureSelector)
	c.Render.MaxAttempts = getEnvInt("CAPTURE_MAX_ATTEMPTS", c.Render.MaxAttempts)
	c.Render.FrameTimeout.Duration = getEnvDuration("FRAME_TIMEOUT", c.Render.FrameTimeout.Duration)
	c.Render.SettleDelay.Duration = getEnvDuration("SETTLE_DELAY", c.Render.SettleDelay.Duration)
	c.Render.NavigateTimeout.Duration = getEnvDuration("NAVIGATE_TIMEOUT", c.Render.NavigateTimeout.Duration)
	c.Render.MinFrameBytes = int64(getEnvInt("MIN_FRAME_BYTES", int(c.Render.MinFrameBytes)))

	c.Queue.BusyPolicy = strings.ToLower(getEnv("BUSY_POLICY", c.Queue.BusyPolicy))
	c.Queue.MaxDepth = getEnvInt("MAX_QUEUE_DEPTH", c.Queue.MaxDepth)
	c.Queue.JobTimeout.Duration = getEnvDuration("JOB_TIMEOUT", c.Queue.JobTimeout.Duration)

	c.Content.Dir = getEnv("CONTENT_DIR", c.Content.Dir)
	c.Content.EntryFile = getEnv("CONTENT_ENTRY", c.Content.EntryFile)
	c.Content.BuildCommand = getEnvRaw("BUILD_COMMAND", c.Content.BuildCommand)
	c.Content.BuildDir = getEnv("BUILD_DIR", c.Content.BuildDir)
	c.Content.BuildTimeout.Duration = getEnvDuration("BUILD_TIMEOUT", c.Content.BuildTimeout.Duration)
	c.Content.SurfaceAddr = getEnv("SURFACE_ADDR", c.Content.SurfaceAddr)
	c.Content.SurfaceURL = getEnv("SURFACE_URL", c.Content.SurfaceURL)

	c.Browser.ExecPath = getEnv("CHROME_PATH", c.Browser.ExecPath)
	c.Browser.NoSandbox = getEnvBool("BROWSER_NO_SANDBOX", c.Browser.NoSandbox)

	c.Encoder.Binary = getEnv("FFMPEG_PATH", c.Encoder.Binary)
	c.Encoder.Codec = getEnv("VIDEO_CODEC", c.Encoder.Codec)
	c.Encoder.CRF = getEnvNonNegInt("VIDEO_CRF", c.Encoder.CRF)
	c.Encoder.PixelFormat = getEnv("PIXEL_FORMAT", c.Encoder.PixelFormat)

	c.Logging.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Logging.Level))
	c.Logging.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Logging.Format))
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Render.TotalFrames < 1 {
		problems = append(problems, "render.total_frames must be at least 1")
	}
	if c.Render.FrameRate < 1 {
		problems = append(problems, "render.frame_rate must be at least 1")
	}
	if c.Render.ViewportWidth <= 0 || c.Render.ViewportHeight <= 0 {
		problems = append(problems, "render viewport must be positive")
	}
	if c.Render.MaxAttempts < 1 {
		problems = append(problems, "render.max_attempts must be at least 1")
	}
	if strings.TrimSpace(c.Render.EntryPoint) == "" {
		problems = append(problems, "render.entry_point is required")
	}
	switch c.Queue.BusyPolicy {
	case "queue", "reject":
	default:
		problems = append(problems, fmt.Sprintf("queue.busy_policy %q must be queue or reject", c.Queue.BusyPolicy))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	if c.Encoder.CRF < 0 || c.Encoder.CRF > maxCRF {
		problems = append(problems, fmt.Sprintf("encoder.crf %d must be between 0 and %d", c.Encoder.CRF, maxCRF))
	}
	if strings.TrimSpace(c.Workspace.Dir) == "" {
		problems = append(problems, "workspace.dir is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

// getEnvRaw honours an explicitly empty value, which disables the setting.
func getEnvRaw(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(value)
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.Atoi(value)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

// getEnvNonNegInt accepts zero, which some settings treat as meaningful.
func getEnvNonNegInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.Atoi(value)
	if err != nil || out < 0 {
		return fallback
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := time.ParseDuration(value)
	if err != nil || out < 0 {
		return fallback
	}
	return out
}
