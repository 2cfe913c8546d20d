// Package config fills configuration structs from environment variables
// using github.com/caarlos0/env struct tags, with optional dotenv files
// loaded through github.com/joho/godotenv.
//
// Every notifykit package that needs settings exposes a Config struct with
// env and envDefault tags. notifyd loads them all at startup:
//
//	var (
//	    procCfg processor.Config
//	    pgCfg   pg.Config
//	    httpCfg httpserver.Config
//	)
//	if err := config.LoadAll(nil, &procCfg, &pgCfg, &httpCfg); err != nil {
//	    return err
//	}
//
// A struct that implements Validator is checked right after parsing, and the
// failure is wrapped in ErrInvalidConfig.
package config
