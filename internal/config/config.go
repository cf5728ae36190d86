package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	GeminiAPIKey   string
	GeminiModelID  string
	GeminiVoice    string
	AuthPassword   string
	ICEServersJSON string
	LogStoreDir    string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file loaded; using process environment")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Println("Warning: GEMINI_API_KEY not set - live sessions will not connect")
	}

	model := os.Getenv("GEMINI_MODEL_ID")
	if model == "" {
		model = "gemini-2.0-flash-live-001"
	}

	voice := os.Getenv("GEMINI_VOICE")
	if voice == "" {
		voice = "Aoede"
	}

	iceServers := os.Getenv("ICE_SERVERS_JSON")
	if iceServers == "" {
		iceServers = `[{"urls":["stun:stun.l.google.com:19302"]}]`
	}

	storeDir := os.Getenv("LOG_STORE_DIR")
	if storeDir == "" {
		storeDir = "./data/healthlog"
	}

	log.Printf("config: HTTP_ADDRESS=%s model=%s voice=%s", addr, model, voice)
	return Config{
		HTTPAddress:    addr,
		GeminiAPIKey:   apiKey,
		GeminiModelID:  model,
		GeminiVoice:    voice,
		AuthPassword:   os.Getenv("AUTH_PASSWORD"),
		ICEServersJSON: iceServers,
		LogStoreDir:    storeDir,
	}
}
