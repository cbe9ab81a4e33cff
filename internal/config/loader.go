package config

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// LoadAppConfig layers defaults, per-section config files from dir, then
// environment variables, strongest last.
func LoadAppConfig(dir string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	var rawServer RawServerConfig
	if err := loadFileInto(dir, "server", &rawServer); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Server, rawServer.ToDomain())

	var rawMedia RawMediaConfig
	if err := loadFileInto(dir, "media", &rawMedia); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Media, rawMedia.ToDomain())

	var rawAuth RawAuthConfig
	if err := loadFileInto(dir, "auth", &rawAuth); err != nil {
		return nil, err
	}
	parsedAuth, err := rawAuth.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Auth, parsedAuth)

	var rawRoom RawRoomConfig
	if err := loadFileInto(dir, "room", &rawRoom); err != nil {
		return nil, err
	}
	parsedRoom, err := rawRoom.ToDomain()
	if err != nil {
		return nil, err
	}
	mergeInto(&cfg.Room, parsedRoom)

	var rawRecording RawRecordingConfig
	if err := loadFileInto(dir, "recording", &rawRecording); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Recording, rawRecording.ToDomain())

	var rawRedis RawRedisConfig
	if err := loadFileInto(dir, "redis", &rawRedis); err != nil {
		return nil, err
	}
	mergeInto(&cfg.Redis, rawRedis.ToDomain())

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadFileInto(dir, filenameBase string, target interface{}) error {
	basePath := filepath.Join(dir, filenameBase)

	if f, err := os.Open(basePath + ".yaml"); err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".yaml")
				return nil
			}
			return err
		}
		return nil
	}

	if f, err := os.Open(basePath + ".json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(target); err != nil {
			if errors.Is(err, io.EOF) {
				slog.Warn("config file is empty, using defaults", "file", basePath+".json")
				return nil
			}
			return err
		}
		return nil
	}

	return nil
}

func mergeInto(dst, src interface{}) {
	dstVal := reflect.ValueOf(dst).Elem()
	srcVal := reflect.ValueOf(src)

	mergeValues(dstVal, srcVal)
}

func mergeValues(dstVal, srcVal reflect.Value) {
	for i := 0; i < srcVal.NumField(); i++ {
		srcField := srcVal.Field(i)
		dstField := dstVal.Field(i)

		switch srcField.Kind() {
		case reflect.Struct:
			mergeValues(dstField, srcField)
		case reflect.Slice:
			if !srcField.IsNil() && srcField.Len() > 0 {
				dstField.Set(srcField)
			}
		case reflect.Pointer:
			if !srcField.IsNil() {
				dstField.Set(srcField)
			}
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}
}
