package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/joho/godotenv"

	"github.com/SumanthReddy1234/datalakes/internal/objstore"
)

// iniSection matches "[AWS]"-style headers, which the credentials file may
// carry; dotenv syntax does not allow them.
var iniSection = regexp.MustCompile(`(?m)^\s*\[[^\]]*\]\s*$`)

// LoadCredentials resolves cfg.Credentials once at startup:
//   - keys set under storage.* win;
//   - otherwise the dotenv file at cfg.CredentialsFile is read. It must hold
//     AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY; AWS_SESSION_TOKEN and
//     AWS_REGION are optional;
//   - a missing file is an error when its path was set explicitly or when
//     the source or output lives on S3. A local-only job without the default
//     file runs with no credentials.
//
// The process environment is never modified.
func LoadCredentials(cfg *Config) error {
	if cfg.Storage.AccessKeyID != "" || cfg.Storage.SecretAccessKey != "" {
		if cfg.Storage.AccessKeyID == "" || cfg.Storage.SecretAccessKey == "" {
			return errors.New("config: storage.access_key_id and storage.secret_access_key must be set together")
		}
		cfg.Credentials = objstore.Credentials{
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			SessionToken:    cfg.Storage.SessionToken,
		}
		return nil
	}

	path := cfg.CredentialsFile
	if path == "" {
		path = DefaultCredentialsFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && cfg.CredentialsFile == DefaultCredentialsFile && !needsCredentials(cfg) {
			return nil
		}
		return fmt.Errorf("config: read credentials file: %w", err)
	}

	vals, err := godotenv.Unmarshal(iniSection.ReplaceAllString(string(b), ""))
	if err != nil {
		return fmt.Errorf("config: parse credentials file %s: %w", path, err)
	}

	id, secret := vals["AWS_ACCESS_KEY_ID"], vals["AWS_SECRET_ACCESS_KEY"]
	if id == "" || secret == "" {
		return fmt.Errorf("config: credentials file %s must set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY", path)
	}
	cfg.Credentials = objstore.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    vals["AWS_SESSION_TOKEN"],
	}
	if r := vals["AWS_REGION"]; r != "" && cfg.Storage.Region == Default().Storage.Region {
		cfg.Storage.Region = r
	}
	return nil
}

func needsCredentials(cfg *Config) bool {
	return objstore.IsRemote(cfg.Source.Base) || objstore.IsRemote(cfg.Output.Base)
}
