package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted in STORAGE_BACKENDS.
const (
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

type StorageConfig struct {
	// Backends lists the backends every backup is written to, in order.
	// Downloads try them in the same order.
	Backends []string `yaml:"backends"`
	// UploadAttempts bounds retries of a single backend upload.
	UploadAttempts int `yaml:"upload_attempts"`

	Local LocalStorageConfig `yaml:"local"`
	S3    S3StorageConfig    `yaml:"s3"`
	GCS   GCSStorageConfig   `yaml:"gcs"`
	Azure AzureStorageConfig `yaml:"azure"`
}

type LocalStorageConfig struct {
	Dir string `yaml:"dir"`
}

type S3StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type GCSStorageConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

type AzureStorageConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	Container   string `yaml:"container"`
	Prefix      string `yaml:"prefix"`
	// Endpoint overrides https://<account>.blob.core.windows.net, e.g. for Azurite.
	Endpoint string `yaml:"endpoint"`
}

func storageFromEnv() StorageConfig {
	attempts, err := getInt("STORAGE_UPLOAD_ATTEMPTS", 3)
	if err != nil || attempts < 1 {
		attempts = 3
	}
	return StorageConfig{
		Backends:       splitList(getEnv("STORAGE_BACKENDS", BackendLocal)),
		UploadAttempts: attempts,
		Local: LocalStorageConfig{
			Dir: getEnv("STORAGE_LOCAL_DIR", "/var/backups/zargar"),
		},
		S3: S3StorageConfig{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", ""),
			Prefix:          getEnv("S3_PREFIX", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		},
		GCS: GCSStorageConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			Prefix:          getEnv("GCS_PREFIX", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		Azure: AzureStorageConfig{
			AccountName: getEnv("AZURE_STORAGE_ACCOUNT", ""),
			AccountKey:  getEnv("AZURE_STORAGE_KEY", ""),
			Container:   getEnv("AZURE_CONTAINER", ""),
			Prefix:      getEnv("AZURE_PREFIX", ""),
			Endpoint:    getEnv("AZURE_ENDPOINT", ""),
		},
	}
}

// MergeFile overlays the YAML file at path onto s. Keys absent from the file
// keep their environment values.
func (s *StorageConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read storage config: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse storage config %s: %w", path, err)
	}
	return nil
}

// Validate checks that every enabled backend has the settings it needs.
func (s *StorageConfig) Validate() error {
	var errs []error
	seen := map[string]bool{}
	for _, name := range s.Backends {
		if seen[name] {
			errs = append(errs, fmt.Errorf("storage backend %q listed twice", name))
			continue
		}
		seen[name] = true

		switch name {
		case BackendLocal:
			if s.Local.Dir == "" {
				errs = append(errs, errors.New("local storage requires STORAGE_LOCAL_DIR"))
			}
		case BackendS3:
			if s.S3.Bucket == "" || s.S3.AccessKeyID == "" || s.S3.SecretAccessKey == "" {
				errs = append(errs, errors.New("s3 storage requires S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY"))
			}
		case BackendGCS:
			if s.GCS.Bucket == "" {
				errs = append(errs, errors.New("gcs storage requires GCS_BUCKET"))
			}
		case BackendAzure:
			if s.Azure.AccountName == "" || s.Azure.AccountKey == "" || s.Azure.Container == "" {
				errs = append(errs, errors.New("azure storage requires AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_CONTAINER"))
			}
		case BackendMemory:
		default:
			errs = append(errs, fmt.Errorf("unknown storage backend %q", name))
		}
	}
	return errors.Join(errs...)
}
