package config

type AppConfig struct {
	Server  ServerConfig
	Indexer IndexerConfig
	Log     LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	indexerCfg, err := LoadIndexer()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Server:  serverCfg,
		Indexer: indexerCfg,
		Log:     logCfg,
	}, nil
}
