package utils

import (
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadConfig reads the .env file under path into the process environment and
// into viper. A missing file is fine; real environment variables win.
func LoadConfig(path string) {
	envFile := filepath.Join(path, ".env")
	_ = godotenv.Load(envFile)

	viper.SetConfigFile(envFile)
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}
