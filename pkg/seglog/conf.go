package seglog

import "go.uber.org/zap"

const (
	defaultMaxSize     int64 = 4 << 20 // 4 MB
	defaultSuffix            = ""
	defaultSyncOnWrite       = false
)

var defaultConfig = &Config{
	MaxSize:     defaultMaxSize,
	Suffix:      defaultSuffix,
	SyncOnWrite: defaultSyncOnWrite,
}

// Config holds the tunables for a single segment.
type Config struct {
	MaxSize     int64       // fixed byte capacity reserved on disk
	Suffix      string      // file name suffix appended after the .log extension
	SyncOnWrite bool        // perform a blocking sync after every write
	Logger      *zap.Logger // optional logger, nop when nil
}

func checkConfig(conf *Config) *Config {
	if conf == nil {
		conf = defaultConfig
	}
	checked := *conf
	if checked.MaxSize < 1 {
		checked.MaxSize = defaultMaxSize
	}
	if checked.Logger == nil {
		checked.Logger = zap.NewNop()
	}
	return &checked
}
