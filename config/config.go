package config

type Plugin struct {
	// configuration version
	Version int `yaml:"version" koanf:"version"`

	Log   LogConfig    `yaml:"log" koanf:"log"`
	Serve ServerConfig `yaml:"serve" koanf:"serve"`
	GCP   GCPConfig    `yaml:"gcp" koanf:"gcp"`
}

type LogConfig struct {
	// log level - debug, info, warning, error, fatal
	Level string `yaml:"level" koanf:"level"`
}

type ServerConfig struct {
	// port to listen on
	Port int `yaml:"port" koanf:"port"`
	// the network interface to listen on
	Host string `yaml:"host" koanf:"host"`
}

type GCPConfig struct {
	// default project and region used when the credential source does
	// not carry them
	ProjectID string `yaml:"project_id" koanf:"project_id"`
	Region    string `yaml:"region" koanf:"region"`

	// per-service base URL overrides keyed by short service name, e.g.
	// api_endpoint_overrides.composer: https://composer.sandbox.example/
	APIEndpointOverrides map[string]string `yaml:"api_endpoint_overrides" koanf:"api_endpoint_overrides"`
}

func Defaults() Plugin {
	return Plugin{
		Version: 1,
		Log:     LogConfig{Level: "info"},
		Serve:   ServerConfig{Port: 8888, Host: "127.0.0.1"},
	}
}
