package conf

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"kestrel/internal/blobstorage"
)

type Config struct {
	Listen      string             `yaml:"listen"`
	Domain      string             `yaml:"domain"`
	DataDir     string             `yaml:"data_dir"`
	Store       StoreConfig        `yaml:"store"`
	Auth        AuthConfig         `yaml:"auth"`
	API         APIConfig          `yaml:"api"`
	Pipeline    []ProcessorConfig  `yaml:"pipeline"`
	BlobStorage blobstorage.Config `yaml:"blob_storage"`
	Sender      SenderConfig       `yaml:"sender"`
}

type StoreConfig struct {
	// Adapter is "sqlite" or "filesystem".
	Adapter string `yaml:"adapter"`
}

type AuthConfig struct {
	// Adapter is "static", "http" or "token".
	Adapter       string            `yaml:"adapter"`
	AuthServerURL string            `yaml:"auth_server_url"`
	TokenSecret   string            `yaml:"token_secret"`
	Users         map[string]string `yaml:"users"`
}

type APIConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	TokenSecret string `yaml:"token_secret"`
}

// ProcessorConfig names one pipeline stage and its parameters, applied
// in file order to every appended message.
type ProcessorConfig struct {
	Name   string            `yaml:"name"`
	Params map[string]string `yaml:"params"`
}

type SenderConfig struct {
	// Provider is "ses" or "imap".
	Provider string `yaml:"provider"`
	Region   string `yaml:"region"`
	From     string `yaml:"from"`
	// Address of an IMAP server for the imap provider.
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"`
}

func LoadConfig() (*Config, error) {
	// Try multiple possible paths
	configPaths := []string{
		"/etc/kestrel/kestrel.yaml",
		"./config/kestrel.yaml",
		"./kestrel.yaml",
		"config/kestrel.yaml",
	}

	var data []byte
	var err error
	for _, path := range configPaths {
		data, err = os.ReadFile(filepath.Clean(path))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return parse(data)
}

// LoadConfigFile reads one explicit path, for the -config flag.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := Config{
		Listen:  ":1143",
		DataDir: "./data",
		Store:   StoreConfig{Adapter: "sqlite"},
		Auth:    AuthConfig{Adapter: "static"},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
