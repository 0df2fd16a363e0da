package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamroom/server/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	sqlitePath = configVar[string]{
		envKey:       "SERVER_SQLITE_PATH",
		flagKey:      "sqlite-path",
		defaultValue: "jamroom.db",
	}
	sessionTTLHours = configVar[int]{
		envKey:       "SERVER_SESSION_TTL_HOURS",
		flagKey:      "session-ttl-hours",
		defaultValue: 24 * 7,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	spotifyClientId = configVar[string]{
		envKey:       "SPOTIFY_CLIENT_ID",
		flagKey:      "spotify-client-id",
		defaultValue: "",
	}
	spotifyClientSecret = configVar[string]{
		envKey:       "SPOTIFY_CLIENT_SECRET",
		flagKey:      "spotify-client-secret",
		defaultValue: "",
	}
	spotifyTokenURL = configVar[string]{
		envKey:       "SPOTIFY_TOKEN_URL",
		flagKey:      "spotify-token-url",
		defaultValue: "https://accounts.spotify.com/api/token",
	}
	spotifyAPIBaseURL = configVar[string]{
		envKey:       "SPOTIFY_API_BASE_URL",
		flagKey:      "spotify-api-base-url",
		defaultValue: "https://api.spotify.com/v1",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, "Server secret")
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(sqlitePath.flagKey, sqlitePath.defaultValue, "Path to the sqlite database file")
	pflag.Int(sessionTTLHours.flagKey, sessionTTLHours.defaultValue, "Session token lifetime in hours")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.String(spotifyClientId.flagKey, spotifyClientId.defaultValue, "Spotify application client id")
	pflag.String(spotifyClientSecret.flagKey, spotifyClientSecret.defaultValue, "Spotify application client secret")
	pflag.String(spotifyTokenURL.flagKey, spotifyTokenURL.defaultValue, "Spotify token endpoint")
	pflag.String(spotifyAPIBaseURL.flagKey, spotifyAPIBaseURL.defaultValue, "Spotify API base url")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(secret.flagKey, secret.envKey)
	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(sqlitePath.flagKey, sqlitePath.envKey)
	viper.BindEnv(sessionTTLHours.flagKey, sessionTTLHours.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)
	viper.BindEnv(spotifyClientId.flagKey, spotifyClientId.envKey)
	viper.BindEnv(spotifyClientSecret.flagKey, spotifyClientSecret.envKey)
	viper.BindEnv(spotifyTokenURL.flagKey, spotifyTokenURL.envKey)
	viper.BindEnv(spotifyAPIBaseURL.flagKey, spotifyAPIBaseURL.envKey)

	viper.SetDefault(secret.flagKey, secret.defaultValue)
	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(sqlitePath.flagKey, sqlitePath.defaultValue)
	viper.SetDefault(sessionTTLHours.flagKey, sessionTTLHours.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)
	viper.SetDefault(spotifyClientId.flagKey, spotifyClientId.defaultValue)
	viper.SetDefault(spotifyClientSecret.flagKey, spotifyClientSecret.defaultValue)
	viper.SetDefault(spotifyTokenURL.flagKey, spotifyTokenURL.defaultValue)
	viper.SetDefault(spotifyAPIBaseURL.flagKey, spotifyAPIBaseURL.defaultValue)

	config := &app.AppConfig{
		Secret:              viper.GetString(secret.flagKey),
		Host:                viper.GetString(host.flagKey),
		Port:                viper.GetInt(port.flagKey),
		LogLevel:            viper.GetString(logLevel.flagKey),
		SqlitePath:          viper.GetString(sqlitePath.flagKey),
		SessionTTLHours:     viper.GetInt(sessionTTLHours.flagKey),
		RedisPort:           viper.GetInt(redisPort.flagKey),
		RedisHost:           viper.GetString(redisHost.flagKey),
		RedisPassword:       viper.GetString(redisPassword.flagKey),
		SpotifyClientId:     viper.GetString(spotifyClientId.flagKey),
		SpotifyClientSecret: viper.GetString(spotifyClientSecret.flagKey),
		SpotifyTokenURL:     viper.GetString(spotifyTokenURL.flagKey),
		SpotifyAPIBaseURL:   viper.GetString(spotifyAPIBaseURL.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
